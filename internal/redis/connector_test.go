package redis

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MrSnakeDoc/nexus/internal/logger"
)

func validOptions() ConnectOptions {
	return ConnectOptions{
		Addr:           "127.0.0.1:1",
		ConnectTimeout: time.Second,
		RetryInterval:  10 * time.Millisecond,
		MaxWait:        20 * time.Millisecond,
		PingTimeout:    50 * time.Millisecond,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ConnectOptions)
		want   string
	}{
		{name: "valid", mutate: func(*ConnectOptions) {}},
		{name: "empty address", mutate: func(o *ConnectOptions) { o.Addr = "" }, want: "address"},
		{name: "connect timeout", mutate: func(o *ConnectOptions) { o.ConnectTimeout = 0 }, want: "ConnectTimeout"},
		{name: "retry interval", mutate: func(o *ConnectOptions) { o.RetryInterval = -1 }, want: "RetryInterval"},
		{name: "max wait", mutate: func(o *ConnectOptions) { o.MaxWait = 0 }, want: "MaxWait"},
		{name: "ping timeout", mutate: func(o *ConnectOptions) { o.PingTimeout = 0 }, want: "PingTimeout"},
		{name: "warn threshold", mutate: func(o *ConnectOptions) { o.WarnThreshold = -1 }, want: "WarnThreshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := validOptions()
			tt.mutate(&o)
			err := o.validate()
			if tt.want == "" {
				if err != nil {
					t.Fatalf("validate() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("validate() = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	if got := backoff(time.Second, 10*time.Second); got != 2*time.Second {
		t.Errorf("backoff(1s) = %v, want 2s", got)
	}
	if got := backoff(8*time.Second, 10*time.Second); got != 10*time.Second {
		t.Errorf("backoff(8s) = %v, want cap 10s", got)
	}
}

func TestConnectGivesUpWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client, err := Connect(ctx, validOptions(), logger.NewNop())
	if err == nil || client != nil {
		t.Fatalf("Connect() = %v, %v; want an error", client, err)
	}
}
