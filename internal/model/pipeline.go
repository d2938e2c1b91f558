package model

import (
	"encoding/json"
	"time"
)

// Pipeline はワークプレースのキャンバス上で組み立てたアーキテクチャを表す。
type Pipeline struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Nodes     []PipelineNode `json:"nodes"`
	Edges     []PipelineEdge `json:"edges"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
	UpdatedAt time.Time      `json:"updated_at,omitempty"`
}

// PipelineNode はキャンバス上のAWSサービスノード。
// Configの形はサービス種別ごとに異なるためそのまま保持する。
type PipelineNode struct {
	ID       string          `json:"id"`
	Service  string          `json:"service"`
	Label    string          `json:"label,omitempty"`
	Position NodePosition    `json:"position"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// NodePosition はキャンバス上の座標。
type NodePosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PipelineEdge はノード間の接続。
type PipelineEdge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
}
