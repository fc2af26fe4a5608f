package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zapflowhq/zapflow/agent"
	"github.com/zapflowhq/zapflow/config"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "zapflow", "namespace used in cache-tier keys")
	cmd.Flags().String("db-path", "zapflow.db", "path to the sqlite database file")
	cmd.Flags().Int("http-port", 8080, "http port for webhook and rest endpoints")
	cmd.Flags().String("wa-api-url", "https://graph.facebook.com/v17.0", "messaging provider api base url")
	cmd.Flags().String("wa-phone-id", "", "messaging provider phone number id")
	cmd.Flags().String("wa-token", "", "messaging provider access token")
	cmd.Flags().String("verify-token", "", "webhook subscription verify token")
	cmd.Flags().String("cron-secret", "", "shared secret for the scheduling trigger endpoint")
	cmd.Flags().String("shortener-url", "", "url shortener endpoint, optional")
	cmd.Flags().Int("sweep-limit", 20, "default due-job sweep limit per invocation")
	cmd.Flags().Int("sweep-max-limit", 100, "hard cap for the due-job sweep limit")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile != "" {
			return err
		}
	}

	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.SqlitePath = viper.GetString("db-path")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.WhatsAppConfig.ApiUrl = viper.GetString("wa-api-url")
	c.cfg.WhatsAppConfig.PhoneId = viper.GetString("wa-phone-id")
	c.cfg.WhatsAppConfig.Token = viper.GetString("wa-token")
	c.cfg.WebhookVerifyToken = viper.GetString("verify-token")
	c.cfg.TriggerSecret = viper.GetString("cron-secret")
	c.cfg.ShortenerUrl = viper.GetString("shortener-url")
	c.cfg.SweepLimit = viper.GetInt("sweep-limit")
	c.cfg.SweepMaxLimit = viper.GetInt("sweep-max-limit")
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		panic(err)
	}
	err = agent.Start()
	if err != nil {
		panic(err)
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "zapflow",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
