// aimtrackd connects to a vision module over UDP or serial,
// subscribes to its telemetry streams and records them to SQLite.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/arclight-data/aimtrack/internal/db"
	"github.com/arclight-data/aimtrack/internal/device"
	"github.com/arclight-data/aimtrack/internal/monitoring"
	"github.com/arclight-data/aimtrack/internal/protocol"
	"github.com/arclight-data/aimtrack/internal/serialmux"
	"github.com/arclight-data/aimtrack/internal/timeutil"
	"github.com/arclight-data/aimtrack/internal/version"
	"github.com/arclight-data/aimtrack/internal/vision/network"
)

var (
	udpAddr    = flag.String("udp", "", "Device UDP address (host:port)")
	listen     = flag.String("listen", ":23456", "Local UDP listen address for telemetry")
	serialPort = flag.String("serial", "", "Serial port to use instead of UDP (e.g. /dev/ttyACM0)")
	dbFile     = flag.String("db", "telemetry.db", "Telemetry database file")
	streams    = flag.String("streams", "accel,markers,impact", "Comma-separated streams to enable: objects, markers, accel, impact")
	pcapFile   = flag.String("pcap", "", "Replay telemetry from a pcap file instead of a live device")
	pcapPort   = flag.Int("pcap-port", 23456, "UDP port to filter when replaying pcap")
	debug      = flag.Bool("debug", false, "Enable per-packet debug logging")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func parseStreamMask(spec string) (uint8, error) {
	var mask uint8
	for _, name := range strings.Split(spec, ",") {
		switch strings.TrimSpace(name) {
		case "":
		case "objects":
			mask |= protocol.StreamObject
		case "markers":
			mask |= protocol.StreamCombinedMarkers
		case "accel":
			mask |= protocol.StreamAccel
		case "impact":
			mask |= protocol.StreamImpact
		default:
			return 0, fmt.Errorf("unknown stream %q", name)
		}
	}
	return mask, nil
}

func markerCount(points [16]protocol.Point) int {
	var n int
	for _, p := range points {
		if p.X != 0 || p.Y != 0 {
			n++
		}
	}
	return n
}

// recorder persists streamed reports, stamping them at receipt time.
type recorder struct {
	db    *db.DB
	clock timeutil.Clock
}

func (r *recorder) record(pkt protocol.Packet) {
	// A zero-value packet can surface during shutdown races; nothing
	// to persist and Data must not be dereferenced.
	if pkt.Data == nil {
		monitoring.Debugf("ignoring empty packet (id %d)", pkt.ID)
		return
	}
	switch d := pkt.Data.(type) {
	case protocol.AccelReport:
		err := r.db.RecordAccelSample(db.AccelSample{
			Accel:     d.Accel,
			Gyro:      d.Gyro,
			Timestamp: r.clock.Now(),
		})
		if err != nil {
			monitoring.Logf("failed to record accel sample: %v", err)
		}
	case protocol.CombinedMarkersReport:
		err := r.db.RecordMarkerFrame(db.MarkerFrame{
			NFCount:   markerCount(d.NFPoints),
			WFCount:   markerCount(d.WFPoints),
			Timestamp: r.clock.Now(),
		})
		if err != nil {
			monitoring.Logf("failed to record marker frame: %v", err)
		}
	case protocol.ImpactReport:
		monitoring.Logf("impact detected")
		if err := r.db.RecordImpact(r.clock.Now()); err != nil {
			monitoring.Logf("failed to record impact: %v", err)
		}
	case protocol.ObjectReport:
		monitoring.Debugf("object report: format=%d", d.Format)
	default:
		monitoring.Debugf("unhandled report %s (id %d)", pkt.Data.Type(), pkt.ID)
	}
}

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println("aimtrackd", version.String())
		return
	}
	monitoring.SetDebug(*debug)
	monitoring.Logf("aimtrackd %s starting", version.String())

	mask, err := parseStreamMask(*streams)
	if err != nil {
		log.Fatalf("invalid -streams: %v", err)
	}

	tdb, err := db.Open(*dbFile)
	if err != nil {
		log.Fatalf("failed to open telemetry database: %v", err)
	}
	defer tdb.Close()

	rec := &recorder{db: tdb, clock: timeutil.RealClock{}}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *pcapFile != "" {
		if err := replayPCAP(ctx, rec); err != nil {
			log.Fatalf("pcap replay failed: %v", err)
		}
		logCounts(tdb)
		return
	}

	switch {
	case *serialPort != "":
		err = runSerial(ctx, rec, mask)
	case *udpAddr != "":
		err = runUDP(ctx, rec, mask)
	default:
		fmt.Fprintln(os.Stderr, "one of -udp, -serial or -pcap is required")
		flag.Usage()
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("%v", err)
	}
	logCounts(tdb)
	log.Print("shutdown complete")
}

func logCounts(tdb *db.DB) {
	accel, markers, impacts, err := tdb.TelemetryCounts()
	if err != nil {
		monitoring.Logf("failed to read telemetry counts: %v", err)
		return
	}
	monitoring.Logf("telemetry totals: accel=%d markers=%d impacts=%d", accel, markers, impacts)
}

// logConfig reads the device's general config at startup. Failure is
// not fatal: a device still booting answers once streams arrive.
func logConfig(ctx context.Context, client *device.Client) {
	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	cfg, err := client.ReadConfig(readCtx)
	if err != nil {
		monitoring.Logf("failed to read device config: %v", err)
		return
	}
	monitoring.Logf("device config: impact_threshold=%d accel_odr=%dHz", cfg.ImpactThreshold, cfg.AccelODR)
}

func runUDP(ctx context.Context, rec *recorder, mask uint8) error {
	sender, err := network.NewSender(*udpAddr)
	if err != nil {
		return fmt.Errorf("failed to dial device: %w", err)
	}
	defer sender.Close()

	client := device.NewClient(sender)
	client.SetReportHandler(func(pkt protocol.Packet) {
		rec.record(pkt)
	})

	listener := network.NewUDPListener(network.UDPListenerConfig{
		Address: *listen,
		Stats:   network.NewPacketStats(),
		Handler: client,
	})
	defer listener.Close()

	// On any return: cancel the goroutines, wait for them, then close
	// the listener and sender (deferred calls run in reverse order).
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("listener stopped: %v", err)
		}
	}()

	addr, err := listener.LocalAddr(ctx)
	if err != nil {
		return err
	}
	monitoring.Logf("listening for telemetry on %s, device at %s", addr, *udpAddr)

	logConfig(ctx, client)

	if err := client.StartStream(0, mask); err != nil {
		return fmt.Errorf("failed to start streams: %w", err)
	}
	monitoring.Logf("enabled streams (mask %#02x)", mask)

	<-ctx.Done()
	if err := client.StopStream(0, mask); err != nil {
		monitoring.Logf("failed to stop streams: %v", err)
	}
	return nil
}

func runSerial(ctx context.Context, rec *recorder, mask uint8) error {
	mux, err := serialmux.NewRealSerialMux(*serialPort, serialmux.DefaultPortOptions())
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	defer mux.Close()

	client := device.NewClient(mux)
	client.SetReportHandler(func(pkt protocol.Packet) {
		rec.record(pkt)
	})

	// On any return: cancel the goroutines, wait for them, then close
	// the mux (deferred calls run in reverse order).
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("serial monitor stopped: %v", err)
		}
	}()

	// Route everything the mux decodes through the request/response
	// correlator so replies and reports both find their consumers.
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := mux.Subscribe()
		defer mux.Unsubscribe(id)
		for {
			select {
			case pkt, ok := <-c:
				if !ok {
					return
				}
				client.HandlePacket(pkt, nil)
			case <-ctx.Done():
				return
			}
		}
	}()

	monitoring.Logf("connected to vision module on %s", *serialPort)

	logConfig(ctx, client)

	if err := client.StartStream(0, mask); err != nil {
		return fmt.Errorf("failed to start streams: %w", err)
	}
	monitoring.Logf("enabled streams (mask %#02x)", mask)

	<-ctx.Done()
	if err := client.StopStream(0, mask); err != nil {
		monitoring.Logf("failed to stop streams: %v", err)
	}
	return nil
}

func replayPCAP(ctx context.Context, rec *recorder) error {
	stats := network.NewPacketStats()
	handler := network.HandlerFunc(func(pkt protocol.Packet, _ *net.UDPAddr) {
		rec.record(pkt)
	})
	if err := network.ReplayPCAPFile(ctx, *pcapFile, *pcapPort, stats, handler); err != nil {
		return err
	}
	stats.LogStats()
	return nil
}
