package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"itemstep/example/users/app"
	"itemstep/example/users/domain/entity"
	"itemstep/pkg/batch/step/processor"
)

var exitCode int

var rootCmd = &cobra.Command{
	Use:   "users",
	Short: "区切り文字付きのユーザーファイルを読み込み、加工して出力するバッチ",
	Long: `users は設定された各ステップで区切り文字付きのファイルを読み込み、
名前とメールアドレスを大文字に変換し、必要に応じてファイルまたはデータベースに書き出します。`,
	SilenceUsage: true,
}

var runFlags struct {
	configPath string
	envFile    string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "設定されたすべてのステップを実行する",
	RunE: func(cmd *cobra.Command, args []string) error {
		exitCode = app.RunApplication(cmd.Context(), app.Options{
			EnvFilePath:    runFlags.envFile,
			ConfigPath:     runFlags.configPath,
			EmbeddedConfig: embeddedConfig,
		})
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "設定を検証してステップの一覧を表示する",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(app.Options{
			EnvFilePath:    runFlags.envFile,
			ConfigPath:     runFlags.configPath,
			EmbeddedConfig: embeddedConfig,
		})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, s := range cfg.Steps {
			if s.Filter != "" {
				if _, err := processor.FilterExpr[entity.User](s.Filter); err != nil {
					return fmt.Errorf("ステップ '%s': %w", s.Name, err)
				}
			}
			fmt.Fprintf(out, "%d\t%s\t%s\t%q\tprocessing=%t\tfilter=%q\n", s.ID, s.Name, s.Path, s.Delimiter, s.ProcessingEnabled(), s.Filter)
		}
		fmt.Fprintf(out, "writer=%s parallelism=%d\n", cfg.Writer.Type, cfg.Batch.Parallelism)
		return nil
	},
}

func defaultEnvFile() string {
	if p := os.Getenv("ENV_FILE_PATH"); p != "" {
		return p
	}
	return ".env"
}

func init() {
	rootCmd.PersistentFlags().StringVar(&runFlags.configPath, "config", "", "設定ファイルのパス (省略時は埋め込みの application.yaml)")
	rootCmd.PersistentFlags().StringVar(&runFlags.envFile, "env", defaultEnvFile(), ".env ファイルのパス")
	rootCmd.AddCommand(runCmd, validateCmd)
}
