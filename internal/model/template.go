package model

import "time"

// Template はデプロイ可能なアーキテクチャテンプレート。
type Template struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Category    string            `json:"category,omitempty"`
	Services    []string          `json:"services,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	Status      string            `json:"status,omitempty"`
	CreatedAt   time.Time         `json:"created_at,omitempty"`
}

// DeployRequest は POST /templates/deploy のリクエストボディ。
type DeployRequest struct {
	TemplateID string            `json:"template_id"`
	Region     string            `json:"region,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// DestroyRequest は POST /templates/destroy のリクエストボディ。
type DestroyRequest struct {
	TemplateID   string `json:"template_id"`
	DeploymentID string `json:"deployment_id,omitempty"`
}

// Deployment はデプロイ・破棄リクエストの受付結果。
type Deployment struct {
	ID         string `json:"id,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}
