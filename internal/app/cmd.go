package app

import (
	"fmt"
	"io"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は認証プロキシサーバーを起動することを示す。
	CommandServe Command = "serve"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"

	// CommandLogin はメールアドレスとパスワードでログインする。
	CommandLogin Command = "login"
	// CommandRegister はアカウントを作成する。
	CommandRegister Command = "register"
	// CommandLogout は保存済みトークンを削除する。
	CommandLogout Command = "logout"
	// CommandMe はログイン中のユーザーを表示する。
	CommandMe Command = "me"
	// CommandPipelines はパイプラインの一覧表示・保存を行う。
	CommandPipelines Command = "pipelines"
	// CommandTemplates はテンプレートの一覧・詳細を表示する。
	CommandTemplates Command = "templates"
	// CommandImport はテンプレート定義ファイルをアップロードする。
	CommandImport Command = "import"
	// CommandDeploy はテンプレートをデプロイする。
	CommandDeploy Command = "deploy"
	// CommandDestroy はデプロイ済みテンプレートを破棄する。
	CommandDestroy Command = "destroy"
	// CommandCloudCredentials はAWS認証情報を登録する。
	CommandCloudCredentials Command = "cloud-credentials"

	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
	// CommandUnknown はサポート外のコマンド。
	CommandUnknown Command = "unknown"
)

// commands はサブコマンドの一覧と説明。usageの表示順を兼ねる。
var commands = []struct {
	cmd  Command
	desc string
}{
	{CommandServe, "start the auth proxy server"},
	{CommandHealthcheck, "check that the proxy server is healthy"},
	{CommandLogin, "log in with --email and --password"},
	{CommandRegister, "create an account with --email, --password and --name"},
	{CommandLogout, "remove the stored token"},
	{CommandMe, "show the current user"},
	{CommandPipelines, "list pipelines, or save one with --save <file>"},
	{CommandTemplates, "list templates, or show one with --id"},
	{CommandImport, "upload a template definition with --file"},
	{CommandDeploy, "deploy a template with --id [--region] [--param k=v]"},
	{CommandDestroy, "destroy a deployed template with --id"},
	{CommandCloudCredentials, "register AWS credentials with --access-key-id and --secret-access-key"},
	{CommandHelp, "show this help"},
}

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はCommandServeを、サポート外のコマンドの場合はCommandUnknownを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "-h", "--help":
		return CommandHelp
	}
	for _, c := range commands {
		if string(c.cmd) == args[0] {
			return c.cmd
		}
	}
	return CommandUnknown
}

// printUsage はサブコマンドの一覧をwに出力する。
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: archbuilder <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-18s %s\n", c.cmd, c.desc)
	}
}
