package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const reconnectDelay = 2 * time.Second

func (c *Connector) Start(ctx context.Context) error {
	c.report(func() { c.reporter.Starting(componentName, "starting") })
	if c.token == "" {
		c.report(func() { c.reporter.Disabled(componentName, "token missing") })
		c.logger.Info("connector disabled, token missing")
		<-ctx.Done()
		return nil
	}
	if c.handler == nil {
		c.report(func() { c.reporter.Disabled(componentName, "handler missing") })
		c.logger.Info("connector disabled, handler missing")
		<-ctx.Done()
		return nil
	}

	c.logger.Info("connector started", "mode", "gateway")
	if c.commandSync {
		if err := c.syncCommands(ctx); err != nil {
			c.logger.Warn("discord command sync failed", "error", err)
		} else {
			c.logger.Info("discord commands synced", "guild_count", len(c.commandGuildIDs))
		}
	}
	defer c.inflight.Wait()
	for {
		err := c.runSession(ctx)
		if ctx.Err() != nil {
			c.report(func() { c.reporter.Stopped(componentName, "stopped") })
			c.logger.Info("connector stopped")
			return nil
		}
		c.report(func() { c.reporter.Degrade(componentName, "gateway session error", err) })
		c.logger.Error("discord session ended, reconnecting", "error", err)
		select {
		case <-ctx.Done():
			c.report(func() { c.reporter.Stopped(componentName, "stopped") })
			c.logger.Info("connector stopped")
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *Connector) report(fn func()) {
	if c.reporter != nil {
		fn()
	}
}

func (c *Connector) runSession(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.gatewayURL, nil)
	if err != nil {
		return fmt.Errorf("dial discord gateway: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the runtime shuts down.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var (
		writeMu  sync.Mutex
		sequence atomic.Int64
	)

	interval, err := readHello(conn)
	if err != nil {
		return err
	}
	if err := c.sendIdentify(conn, &writeMu); err != nil {
		return err
	}
	c.report(func() { c.reporter.Beat(componentName, "gateway session established") })

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	go c.heartbeatLoop(heartbeatCtx, conn, &writeMu, &sequence, interval)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read gateway message: %w", err)
		}

		var envelope gatewayEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			c.logger.Error("decode gateway envelope failed", "error", err)
			continue
		}
		if envelope.S != nil {
			sequence.Store(*envelope.S)
		}

		switch envelope.Op {
		case 0:
			c.report(func() { c.reporter.Beat(componentName, "gateway event received") })
			c.dispatch(ctx, envelope.T, envelope.D)
		case 1:
			if err := c.sendHeartbeat(conn, &writeMu, sequence.Load()); err != nil {
				return err
			}
		case 7:
			return fmt.Errorf("gateway requested reconnect")
		case 9:
			return fmt.Errorf("gateway invalid session")
		}
	}
}

func readHello(conn *websocket.Conn) (time.Duration, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("read hello: %w", err)
		}
		var envelope gatewayEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			return 0, fmt.Errorf("decode hello payload: %w", err)
		}
		if envelope.Op != 10 {
			continue
		}
		var hello discordHello
		if err := json.Unmarshal(envelope.D, &hello); err != nil {
			return 0, fmt.Errorf("decode hello body: %w", err)
		}
		return time.Duration(hello.HeartbeatIntervalMS) * time.Millisecond, nil
	}
}

func (c *Connector) heartbeatLoop(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex, seq *atomic.Int64, interval time.Duration) {
	if interval < time.Second {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.sendHeartbeat(conn, writeMu, seq.Load()); err != nil {
				c.logger.Error("heartbeat failed", "error", err)
				return
			}
		}
	}
}

func (c *Connector) sendIdentify(conn *websocket.Conn, writeMu *sync.Mutex) error {
	payload := map[string]any{
		"op": 2,
		"d": map[string]any{
			"token": c.token,
			"intents": discordIntentGuilds |
				discordIntentGuildMessages |
				discordIntentDirectMessages |
				discordIntentMessageContents,
			"properties": map[string]string{
				"os":      "linux",
				"browser": "einstein",
				"device":  "einstein",
			},
		},
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("send identify: %w", err)
	}
	return nil
}

func (c *Connector) sendHeartbeat(conn *websocket.Conn, writeMu *sync.Mutex, seq int64) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	var payload any = map[string]any{"op": 1, "d": nil}
	if seq > 0 {
		payload = map[string]any{"op": 1, "d": seq}
	}
	if err := conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("send heartbeat: %w", err)
	}
	return nil
}
