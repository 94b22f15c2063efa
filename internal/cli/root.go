package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shaiso/Dagon/internal/config"
	"github.com/shaiso/Dagon/internal/telemetry"
)

// Env — общее окружение команд. Config, Logger и Out заполняются
// в PersistentPreRunE после разбора флагов.
type Env struct {
	Viper  *viper.Viper
	Config *config.Config
	Logger *slog.Logger
	Out    *Output

	flagKeys map[*cobra.Command]map[string]string
}

// NewRootCmd создаёт корневую команду dagon.
func NewRootCmd(version string) *cobra.Command {
	env := &Env{Viper: config.New()}

	var (
		configFile string
		jsonOutput bool
	)

	rootCmd := &cobra.Command{
		Use:           "dagon",
		Short:         "Dagon — DAG workflow orchestrator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			env.bindCommandFlags(cmd)
			cfg, err := config.Load(env.Viper, configFile)
			if err != nil {
				return err
			}
			env.Config = cfg
			env.Logger = telemetry.SetupLogger(telemetry.LogOptions{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				Output: cmd.ErrOrStderr(),
			})
			env.Out = NewOutput(jsonOutput, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default: ./dagon.yaml, ~/.dagon/dagon.yaml)")
	flags.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: text, json")
	bindFlag(env.Viper, "log.level", rootCmd, "log-level")
	bindFlag(env.Viper, "log.format", rootCmd, "log-format")

	rootCmd.AddCommand(
		NewRunCmd(env),
		NewValidateCmd(env),
		NewGraphCmd(env),
		NewScheduleCmd(env),
		NewKeygenCmd(env),
		NewStatusCmd(env),
	)

	return rootCmd
}
