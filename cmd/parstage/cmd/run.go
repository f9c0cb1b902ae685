package cmd

import (
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"parstage/pkg/authzserver"
)

func init() {
	runCmd.Flags().StringP("addr", "a", ":8081", "Address to listen on")
	viper.BindPFlag("addr", runCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the authorization request staging server",
	Run: func(cmd *cobra.Command, args []string) {
		configFile := expandHome(viper.GetString("config_file"))
		if configFile == "" {
			cobra.CheckErr("config file is required. Use --config-file/-f flag or environment variable")
		}

		server, err := authzserver.NewFromConfigFile(configFile)
		if err != nil {
			slog.Error("Failed to create server", "error", err, "config_file", configFile)
			os.Exit(1)
		}

		e := echo.New()
		e.Use(middleware.Recover())

		server.MountRoutes(e.Group(""))

		for _, route := range e.Routes() {
			slog.Info("Route", "method", route.Method, "path", route.Path)
		}

		addr := viper.GetString("addr")
		slog.Info("starting server", "version", authzserver.Version, "addr", addr, "issuer", server.Metadata.Issuer)
		e.Logger.Fatal(e.Start(addr))
	},
}
