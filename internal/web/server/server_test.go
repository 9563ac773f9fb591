package server

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var helloHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("hello"))
})

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{Address: ":0"})
	assert.Error(t, err)
}

func TestNew_TLSDefaults(t *testing.T) {
	config := DefaultConfig(helloHandler)
	config.TLSConfig = &TLSConfig{CertFile: "cert.pem", KeyFile: "key.pem"}

	s, err := New(config)
	require.NoError(t, err)
	require.NotNil(t, s.httpServer.TLSConfig)
	assert.Equal(t, uint16(0x0303), s.httpServer.TLSConfig.MinVersion)
}

func TestNew_DatabasePool(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()

	config := DefaultConfig(helloHandler)
	config.Database = DefaultDatabaseConfig(db)
	_, err = New(config)
	require.NoError(t, err)
	assert.Equal(t, 10, db.Stats().MaxOpenConnections)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectPing().WillReturnError(errors.New("down"))
	_, err = New(config)
	assert.Error(t, err)

	config.Database = &DatabaseConfig{DB: (*sql.DB)(nil)}
	_, err = New(config)
	assert.Error(t, err)
}

func TestGracefulShutdown_Run(t *testing.T) {
	config := DefaultConfig(helloHandler)
	config.Address = "127.0.0.1:0"
	s, err := New(config)
	require.NoError(t, err)

	require.NoError(t, s.Listen())

	gs := NewGracefulShutdown(s, time.Second, nil)
	var order []string
	gs.RegisterHook(func(context.Context) error { order = append(order, "first"); return nil })
	gs.RegisterHook(func(context.Context) error { order = append(order, "second"); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Run(ctx) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + s.Addr() + "/")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "hello", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestGracefulShutdown_HookErrors(t *testing.T) {
	config := DefaultConfig(helloHandler)
	config.Address = "127.0.0.1:0"
	s, err := New(config)
	require.NoError(t, err)

	gs := NewGracefulShutdown(s, time.Second, nil)
	gs.RegisterHook(func(context.Context) error { return errors.New("flush failed") })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = gs.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
}

func TestGracefulShutdown_ListenError(t *testing.T) {
	config := DefaultConfig(helloHandler)
	config.Address = "256.0.0.1:99999"
	s, err := New(config)
	require.NoError(t, err)

	err = NewGracefulShutdown(s, time.Second, nil).Run(context.Background())
	assert.Error(t, err)
}
