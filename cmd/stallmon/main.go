// Command stallmon runs one monitored move against a serial servo: it
// homes the actuator, commands the move, polls for a stall, and issues
// the corrective reposition. All behavior comes from a yaml config; the
// command itself holds no control logic.
//
// Usage:
//
//	stallmon <config.yaml>
//
// SIGINT cancels the session cooperatively; the actuator is left in
// place without a corrective move.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roverton/go-stservo/internal/config"
	"github.com/roverton/go-stservo/logger"
	"github.com/roverton/go-stservo/monitor"
	"github.com/roverton/go-stservo/stservo"
	"github.com/roverton/go-stservo/telemetry"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: stallmon <config.yaml>")
		os.Exit(2)
	}

	cfg, err := config.Load(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := buildLogger(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Error("stallmon: session failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	drv, err := stservo.Open(cfg.Serial.Port, cfg.Serial.Baud, driverOptions(cfg, log)...)
	if err != nil {
		return err
	}
	defer drv.Close()

	ctx := context.Background()

	if !drv.Ping(ctx, cfg.Servo.ID) {
		return fmt.Errorf("servo %d did not answer ping on %s", cfg.Servo.ID, cfg.Serial.Port)
	}
	log.Info("stallmon: servo online", "servoID", cfg.Servo.ID, "port", cfg.Serial.Port)

	opts, cleanup, err := monitorOptions(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	mcfg, err := monitor.NewConfig(cfg.Move.Target, cfg.Move.Speed, opts...)
	if err != nil {
		return err
	}

	session, err := monitor.NewSession(drv, cfg.Servo.ID, mcfg)
	if err != nil {
		return err
	}

	// SIGINT/SIGTERM cancel cooperatively; the loop halts at the next
	// poll boundary.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		log.Info("stallmon: cancellation requested")
		session.Cancel()
	}()

	go reportStatus(session, log)

	res, err := session.Run(ctx)
	if err != nil {
		return err
	}

	if res.Stalled {
		log.Info("stallmon: stall detected and corrected",
			"stallPosition", res.StallPosition,
			"elapsed", res.Elapsed,
		)
	} else {
		log.Info("stallmon: finished without stall",
			"final", res.Final,
			"elapsed", res.Elapsed,
		)
	}

	return nil
}

// reportStatus prints a status line once a second until the session ends.
func reportStatus(session *monitor.Session, log logger.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-session.Done():
			return
		case <-ticker.C:
			st := session.Status()
			log.Info("stallmon: status",
				"state", st.State,
				"position", st.Position,
				"load", st.Load,
				"elapsed", st.Elapsed,
			)
		}
	}
}

func buildLogger(cfg config.LogConfig) logger.Logger {
	if cfg.Console {
		// The console handler is selected through the environment.
		os.Setenv("ENV", "development")
	}

	level := logger.InfoLevel
	switch cfg.Level {
	case "debug":
		level = logger.DebugLevel
	case "warn":
		level = logger.WarnLevel
	case "error":
		level = logger.ErrorLevel
	}

	return logger.NewSlog(level, false)
}

func driverOptions(cfg *config.Config, log logger.Logger) []stservo.DriverOption {
	opts := []stservo.DriverOption{stservo.WithLogger(log)}
	if cfg.Servo.SignBit != 0 {
		opts = append(opts, stservo.WithLoadSignBit(cfg.Servo.SignBit))
	}

	return opts
}

// monitorOptions translates the yaml monitor section into session
// options. Zero values keep the package defaults. The returned cleanup
// closes the telemetry publisher, if one was configured.
func monitorOptions(cfg *config.Config, log logger.Logger) ([]monitor.Option, func(), error) {
	opts := []monitor.Option{monitor.WithSessionLogger(log)}
	cleanup := func() {}

	if cfg.Move.Wheel {
		opts = append(opts, monitor.WithWheelMode(cfg.Move.WheelSpeed))
	}
	if cfg.Move.MoveTimeMs != 0 {
		opts = append(opts, monitor.WithMoveTime(cfg.Move.MoveTimeMs))
	}

	mon := cfg.Monitor
	if mon.StallThreshold != 0 {
		opts = append(opts, monitor.WithStallThreshold(mon.StallThreshold))
	}
	if mon.PollIntervalMs != 0 {
		opts = append(opts, monitor.WithPollInterval(time.Duration(mon.PollIntervalMs)*time.Millisecond))
	}
	if mon.RunDurationS != 0 {
		opts = append(opts, monitor.WithRunDuration(time.Duration(mon.RunDurationS)*time.Second))
	}
	if mon.Home.Position != 0 {
		opts = append(opts, monitor.WithHomePosition(mon.Home.Position))
	}
	if mon.Home.Speed != 0 {
		opts = append(opts, monitor.WithHomeSpeed(mon.Home.Speed))
	}
	if mon.Home.SettleMs != 0 {
		opts = append(opts, monitor.WithHomeSettle(time.Duration(mon.Home.SettleMs)*time.Millisecond))
	}
	if mon.RecoverySpeed != 0 {
		opts = append(opts, monitor.WithRecoverySpeed(mon.RecoverySpeed))
	}
	if mon.RecoverySettleS != 0 {
		opts = append(opts, monitor.WithRecoverySettle(time.Duration(mon.RecoverySettleS)*time.Second))
	}

	switch mon.OffsetPolicy {
	case config.PolicyFloor:
		opts = append(opts, monitor.WithOffsetPolicy(monitor.OffsetFloor))
	case config.PolicyFloorNoBias:
		opts = append(opts, monitor.WithOffsetPolicy(monitor.OffsetFloorNoBias))
	}

	if cfg.MQTT != nil {
		pub, err := telemetry.NewMQTTPublisher(cfg.MQTT.Broker, telemetry.WithTelemetryLogger(log))
		if err != nil {
			return nil, nil, err
		}

		opts = append(opts, monitor.WithPublisher(pub))
		cleanup = pub.Close
	}

	return opts, cleanup, nil
}
