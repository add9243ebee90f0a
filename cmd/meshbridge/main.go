package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MatusOllah/slogcolor"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/wpamesh/mesh-discord-bridge/pkg/auth"
	"github.com/wpamesh/mesh-discord-bridge/pkg/bridge"
	"github.com/wpamesh/mesh-discord-bridge/pkg/chat"
	"github.com/wpamesh/mesh-discord-bridge/pkg/config"
	"github.com/wpamesh/mesh-discord-bridge/pkg/store"
	"github.com/wpamesh/mesh-discord-bridge/pkg/transport"
	"github.com/wpamesh/mesh-discord-bridge/pkg/transport/meshmqtt"
)

func main() {
	slog.SetDefault(slog.New(slogcolor.NewHandler(os.Stderr, slogcolor.DefaultOptions)))

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("loading configuration failed", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.Database.User, cfg.Database.Password, cfg.Database.Host, cfg.Database.DB)
	if err != nil {
		slog.Error("opening database failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		slog.Error("migrating database failed", "error", err)
		os.Exit(1)
	}

	stores := store.NewStores(db)

	// The Discord binding implements chat.Session and plugs in here; the
	// log session keeps the bridge usable without one.
	session := chat.NewLogSession()

	b := bridge.New(*cfg, stores, session)

	creds := auth.NewGatewayVerifier(stores.Gateways)
	factory := func(handlers transport.Handlers) (transport.Transport, error) {
		return meshmqtt.New(cfg.MeshSettings, handlers, creds)
	}
	b.SetTransportFactory(factory)

	tr, err := factory(b.Handlers())
	if err != nil {
		slog.Error("building mesh transport failed", "error", err)
		os.Exit(1)
	}
	b.SetTransport(tr)

	if err := tr.Connect(); err != nil {
		slog.Error("connecting mesh transport failed", "error", err)
		os.Exit(1)
	}
	defer tr.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("mesh bridge running",
		"mode", cfg.MeshSettings.Mode,
		"self", cfg.MeshSettings.SelfNode.NodeID.String())
	b.Run(ctx)
}

func loadConfig() (*config.Configuration, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/meshbridge")
	viper.SetEnvPrefix("MESHBRIDGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg config.Configuration
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := viper.Unmarshal(&cfg, hook); err != nil {
		return nil, err
	}
	return &cfg, nil
}
