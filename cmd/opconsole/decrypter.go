package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ericfisherdev/opconsole/internal/adapter/driven/aesgcm"
	"github.com/ericfisherdev/opconsole/internal/adapter/driven/keyservice"
	"github.com/ericfisherdev/opconsole/internal/application"
	"github.com/ericfisherdev/opconsole/internal/config"
	"github.com/ericfisherdev/opconsole/internal/domain/port/driven"
)

// newDecrypter builds the capability cfg selects and the label shown in the
// console header.
func newDecrypter(cfg *config.Config, logger *slog.Logger) (driven.Decrypter, string) {
	if cfg.UsesKeyService() {
		client := keyservice.NewClient(cfg.DecryptURL, cfg.DecryptToken, nil)
		client.SetRateLimit(cfg.DecryptRate)
		logger.Info("decrypting through key service", "url", client.BaseURL(), "rate_limit", cfg.DecryptRate)
		return client, "keyservice"
	}
	logger.Info("decrypting locally with aes-gcm")
	return aesgcm.New(), "aes-gcm"
}

// reloadDecrypter re-reads the configuration and swaps the capability held
// by provider. On a load error the current capability stays in place.
func reloadDecrypter(provider *application.DecrypterProvider, load func() (*config.Config, error), logger *slog.Logger) {
	cfg, err := load()
	if err != nil {
		logger.Error("reload decrypter config", "error", err, "decrypter", provider.Name())
		return
	}
	decrypter, name := newDecrypter(cfg, logger)
	provider.Replace(decrypter, name)
	logger.Info("decrypter replaced", "decrypter", name)
}

// watchReload reloads the decrypter on every SIGHUP until ctx is done.
func watchReload(ctx context.Context, provider *application.DecrypterProvider, logger *slog.Logger) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			reloadDecrypter(provider, config.Load, logger)
		}
	}
}
