/*
Copyright © 2021 Edmond Cotterell

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	devConfig "github.com/Daskott/haven/dev/config"
	"github.com/Daskott/haven/server"
	"github.com/Daskott/haven/shared"
	"github.com/go-playground/validator"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envBindings maps the environment variables haven has always read onto config keys.
// FYI: The env var overrides whatever is in the config file
var envBindings = map[string]string{
	"mail.username":                 "MAIL_USERNAME",
	"mail.password":                 "MAIL_PASSWORD",
	"fast2sms.apiKey":               "FAST2SMS_API_KEY",
	"haven.fernetKey":               "FERNET_KEY",
	"haven.privateKeyPem":           "SECRET_KEY",
	"google.applicationCredentials": "GOOGLE_APPLICATION_CREDENTIALS",
}

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start a haven server",
	Long: `The haven server serves the web app and the api used to manage
emergency contacts and send SOS alerts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadServerConfig(serverConfigFile, isDevEnv)
		if err != nil {
			return err
		}

		if isDevEnv {
			fmt.Fprintln(cmd.ErrOrStderr(), warningLabel, "running with the development config")
		}

		server.Start(config, isDevEnv)
		return nil
	},
}

var serverConfigFile string

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&serverConfigFile, "sconfig", "", "Config for server (not needed with --dev)")
}

// loadServerConfig reads 'configFile', or the built in dev config in dev mode,
// applies env overrides and validates the result.
func loadServerConfig(configFile string, devMode bool) (*shared.ServerConfig, error) {
	// A missing .env file is fine, the variables may be set some other way
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading .env file: %v", err)
	}

	config := viper.New()
	config.SetConfigType("yaml")

	if devMode {
		if err := config.ReadConfig(strings.NewReader(devConfig.SERVER_YML)); err != nil {
			return nil, fmt.Errorf("error reading dev server config: %v", err)
		}
	} else {
		if configFile == "" {
			return nil, formattedError("must set --sconfig, or run with --dev")
		}

		config.SetConfigFile(configFile)
		if err := config.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading server config file: %v", err)
		}
	}

	for key, env := range envBindings {
		if err := config.BindEnv(key, env); err != nil {
			return nil, err
		}
	}
	config.AutomaticEnv() // read in environment variables that match

	serverConfig := shared.ServerConfig{}
	if err := config.Unmarshal(&serverConfig); err != nil {
		return nil, fmt.Errorf("unable to decode server config: %v", err)
	}

	if err := validator.New().Struct(serverConfig); err != nil {
		return nil, formattedError("invalid server config:\n%v", err)
	}

	return &serverConfig, nil
}
