package fakebackend

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dmitrijs2005/revsearch/internal/logging"
)

func TestModule_StartsAndStops(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()
	cfg.HTTP.Addr = "127.0.0.1:0"

	var srv *Server
	app := fxtest.New(t,
		fx.Supply(cfg),
		fx.Provide(func() logging.Logger { return logging.Nop() }),
		Module,
		fx.Populate(&srv),
	)
	app.RequireStart()

	require.NotNil(t, srv.Addr())
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet,
		fmt.Sprintf("http://%s/health", srv.Addr()), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	app.RequireStop()
}

func TestModule_ListenFailureAbortsStart(t *testing.T) {
	cfg := &Config{}
	cfg.LoadDefaults()
	cfg.HTTP.Addr = "256.0.0.1:0"

	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Provide(func() logging.Logger { return logging.Nop() }),
		Module,
	)
	err := app.Start(context.Background())
	require.Error(t, err)
}
