package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/hitoshi/archbuilder/internal/apiclient"
	"github.com/hitoshi/archbuilder/internal/config"
	"github.com/hitoshi/archbuilder/internal/credential"
	"github.com/hitoshi/archbuilder/internal/metrics"
	"github.com/hitoshi/archbuilder/internal/model"
)

// errMissingFlag は必須フラグが指定されていない場合のエラー。
var errMissingFlag = errors.New("missing required flag")

var _ apiclient.MetricsRecorder = (*metrics.Collector)(nil)

// newAPI はクライアント側のトークン保存先とリクエストパイプラインを組み立てる。
func newAPI(cfg *config.Config, log *slog.Logger) (*apiclient.API, error) {
	origin, err := url.Parse(cfg.PublicAPIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid public API base URL: %w", err)
	}

	jar, err := credential.NewJar()
	if err != nil {
		return nil, err
	}
	store := credential.NewStore(
		credential.NewFileLocalStore(cfg.TokenStorePath),
		credential.NewCookieStore(jar, origin),
		log,
	)

	client, err := apiclient.NewClient(apiclient.Config{
		BaseURL:     cfg.PublicAPIBaseURL,
		Timeout:     cfg.RequestTimeout,
		Credentials: store,
		Jar:         jar,
		// CLIは1回の実行で終了するため、メトリクスは公開せず集計のみ行う
		Metrics: metrics.NewCollector(prometheus.NewRegistry()),
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}
	return apiclient.NewAPI(client, store), nil
}

// runClientCommand はバックエンドAPIを呼び出すサブコマンドを実行する。
func runClientCommand(ctx context.Context, cmd Command, args []string, cfg *config.Config, log *slog.Logger, out, errw io.Writer) error {
	api, err := newAPI(cfg, log)
	if err != nil {
		return err
	}

	fs := pflag.NewFlagSet(string(cmd), pflag.ContinueOnError)
	fs.SetOutput(errw)

	switch cmd {
	case CommandLogin, CommandRegister:
		return runAuth(ctx, api, cmd, fs, args, out)
	case CommandLogout:
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := api.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(out, "logged out")
		return nil
	case CommandMe:
		if err := fs.Parse(args); err != nil {
			return err
		}
		user, err := api.Me(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, user)
	case CommandPipelines:
		return runPipelines(ctx, api, fs, args, out)
	case CommandTemplates:
		return runTemplates(ctx, api, fs, args, out)
	case CommandImport:
		return runImport(ctx, api, fs, args, out)
	case CommandDeploy:
		return runDeploy(ctx, api, fs, args, out)
	case CommandDestroy:
		return runDestroy(ctx, api, fs, args, out)
	case CommandCloudCredentials:
		return runCloudCredentials(ctx, api, fs, args, out)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
}

func runAuth(ctx context.Context, api *apiclient.API, cmd Command, fs *pflag.FlagSet, args []string, out io.Writer) error {
	email := fs.String("email", "", "メールアドレス")
	password := fs.String("password", "", "パスワード（未指定時はARCHBUILDER_PASSWORD）")
	var name *string
	if cmd == CommandRegister {
		name = fs.String("name", "", "表示名")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("ARCHBUILDER_PASSWORD")
	}
	if err := requireFlags(fs, "email", "password"); err != nil {
		return err
	}

	var (
		resp *model.AuthResponse
		err  error
	)
	if cmd == CommandRegister {
		resp, err = api.Register(ctx, model.RegisterRequest{
			Email:    *email,
			Password: *password,
			Name:     *name,
		})
	} else {
		resp, err = api.Login(ctx, *email, *password)
	}
	if err != nil {
		return err
	}

	if resp.User != nil {
		return printJSON(out, resp.User)
	}
	if resp.BearerToken() == "" {
		fmt.Fprintln(out, "request accepted")
		return nil
	}
	fmt.Fprintln(out, "logged in")
	return nil
}

func runPipelines(ctx context.Context, api *apiclient.API, fs *pflag.FlagSet, args []string, out io.Writer) error {
	save := fs.String("save", "", "保存するパイプライン定義のJSONファイル")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *save == "" {
		pipelines, err := api.ListPipelines(ctx)
		if err != nil {
			return err
		}
		return printJSON(out, pipelines)
	}

	data, err := os.ReadFile(*save)
	if err != nil {
		return fmt.Errorf("failed to read pipeline file: %w", err)
	}
	var p model.Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to parse pipeline file: %w", err)
	}
	saved, err := api.SavePipeline(ctx, &p)
	if err != nil {
		return err
	}
	return printJSON(out, saved)
}

func runTemplates(ctx context.Context, api *apiclient.API, fs *pflag.FlagSet, args []string, out io.Writer) error {
	id := fs.String("id", "", "取得するテンプレートID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *id != "" {
		tmpl, err := api.GetTemplate(ctx, *id)
		if err != nil {
			return err
		}
		return printJSON(out, tmpl)
	}
	templates, err := api.ListTemplates(ctx)
	if err != nil {
		return err
	}
	return printJSON(out, templates)
}

func runImport(ctx context.Context, api *apiclient.API, fs *pflag.FlagSet, args []string, out io.Writer) error {
	file := fs.String("file", "", "アップロードするテンプレート定義ファイル")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "file"); err != nil {
		return err
	}

	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("failed to open template file: %w", err)
	}
	defer f.Close()

	tmpl, err := api.ImportTemplate(ctx, filepath.Base(*file), f)
	if err != nil {
		return err
	}
	return printJSON(out, tmpl)
}

func runDeploy(ctx context.Context, api *apiclient.API, fs *pflag.FlagSet, args []string, out io.Writer) error {
	id := fs.String("id", "", "デプロイするテンプレートID")
	region := fs.String("region", "", "デプロイ先のAWSリージョン")
	params := fs.StringToString("param", nil, "テンプレートパラメータ（key=value）")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "id"); err != nil {
		return err
	}

	d, err := api.DeployTemplate(ctx, model.DeployRequest{
		TemplateID: *id,
		Region:     *region,
		Parameters: *params,
	})
	if err != nil {
		return err
	}
	return printJSON(out, d)
}

func runDestroy(ctx context.Context, api *apiclient.API, fs *pflag.FlagSet, args []string, out io.Writer) error {
	id := fs.String("id", "", "破棄するテンプレートID")
	deployment := fs.String("deployment", "", "破棄するデプロイID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlags(fs, "id"); err != nil {
		return err
	}

	d, err := api.DestroyTemplate(ctx, model.DestroyRequest{
		TemplateID:   *id,
		DeploymentID: *deployment,
	})
	if err != nil {
		return err
	}
	return printJSON(out, d)
}

func runCloudCredentials(ctx context.Context, api *apiclient.API, fs *pflag.FlagSet, args []string, out io.Writer) error {
	accessKeyID := fs.String("access-key-id", "", "AWSアクセスキーID（未指定時はAWS_ACCESS_KEY_ID）")
	secretAccessKey := fs.String("secret-access-key", "", "AWSシークレットアクセスキー（未指定時はAWS_SECRET_ACCESS_KEY）")
	region := fs.String("region", "", "既定のAWSリージョン（未指定時はAWS_REGION）")
	if err := fs.Parse(args); err != nil {
		return err
	}
	fallbackEnv(accessKeyID, "AWS_ACCESS_KEY_ID")
	fallbackEnv(secretAccessKey, "AWS_SECRET_ACCESS_KEY")
	fallbackEnv(region, "AWS_REGION")
	if err := requireFlags(fs, "access-key-id", "secret-access-key"); err != nil {
		return err
	}

	if err := api.SaveCloudCredentials(ctx, model.CloudCredentials{
		AccessKeyID:     *accessKeyID,
		SecretAccessKey: *secretAccessKey,
		Region:          *region,
	}); err != nil {
		return err
	}
	fmt.Fprintln(out, "cloud credentials saved")
	return nil
}

// requireFlags は指定したフラグの値が空でないことを確認する。
func requireFlags(fs *pflag.FlagSet, names ...string) error {
	var missing []string
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil || f.Value.String() == "" {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", errMissingFlag, strings.Join(missing, ", "))
	}
	return nil
}

func fallbackEnv(v *string, key string) {
	if *v == "" {
		*v = os.Getenv(key)
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
