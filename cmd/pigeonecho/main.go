// Command pigeonecho is a minimal server that accepts every peer and
// echoes back any chat message it receives, wiring transport, conn and
// registry together end to end.
package main

import (
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ventosilenzioso/carrierpigeon/conn"
	"github.com/ventosilenzioso/carrierpigeon/cpigeonlog"
	"github.com/ventosilenzioso/carrierpigeon/metrics"
	"github.com/ventosilenzioso/carrierpigeon/registrytest"
	"github.com/ventosilenzioso/carrierpigeon/transport"
)

const version = "0.1.0"

func main() {
	host := flag.String("host", "0.0.0.0", "bind address")
	port := flag.Int("port", 7777, "bind UDP port")
	debug := flag.Bool("debug", false, "enable debug logging")
	tickRate := flag.Duration("tick", 20*time.Millisecond, "server tick interval")
	metricsAddr := flag.String("metrics-addr", ":9777", "address to serve /metrics on")
	flag.Parse()

	cpigeonlog.Banner("Carrier Pigeon Echo Server", version)

	log, err := cpigeonlog.New(*debug)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	table, err := registrytest.BuildTable()
	if err != nil {
		log.Fatal("building message table", zap.Error(err))
	}

	addr := &net.UDPAddr{IP: net.ParseIP(*host), Port: *port}
	udp, err := transport.ListenUDP(addr)
	if err != nil {
		log.Fatal("binding UDP socket", zap.Error(err))
	}
	defer udp.Close()

	reg := metrics.NewRegistry()
	reg.MustRegister(prometheus.DefaultRegisterer)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	server := conn.NewServer[
		registrytest.ConnectionMsg,
		registrytest.AcceptMsg,
		registrytest.RejectMsg,
		registrytest.DisconnectMsg,
	](udp, table, log)

	log.Info("listening",
		zap.String("host", *host),
		zap.Int("port", *port),
		zap.Duration("tick", *tickRate),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runTick(server, reg, log)
		case sig := <-sigChan:
			log.Warn("shutting down", zap.String("signal", sig.String()))
			return
		}
	}
}

func runTick(server *conn.Server[registrytest.ConnectionMsg, registrytest.AcceptMsg, registrytest.RejectMsg, registrytest.DisconnectMsg], reg *metrics.Registry, log *zap.Logger) {
	for _, p := range server.Pending() {
		msg, ok := p.Connection.(registrytest.ConnectionMsg)
		if !ok {
			continue
		}
		if err := server.Accept(p.Addr, registrytest.AcceptMsg{}); err != nil {
			log.Warn("accept failed", zap.String("addr", p.Addr), zap.Error(err))
			continue
		}
		log.Info("peer accepted", zap.String("addr", p.Addr), zap.Uint32("cid", uint32(p.CId)), zap.String("user", msg.User))
		reg.ObserveStatus("Connected")
	}

	out := server.Tick(time.Now())

	for _, cid := range server.CIds() {
		if windowSize, residualCount, savedCount, ok := server.Stats(cid); ok {
			reg.ObserveAck(windowSize, residualCount)
			reg.ObserveReliable(savedCount, 0)
		}
	}

	for cid, received := range out {
		for _, r := range received {
			if r.MType != registrytest.MTypeChat {
				continue
			}
			chat, ok := r.Value.(registrytest.ChatMsg)
			if !ok {
				continue
			}
			log.Debug("echoing chat", zap.Uint32("cid", uint32(cid)), zap.String("text", chat.Text))
			if _, err := server.Send(cid, registrytest.MTypeChat, chat); err != nil {
				log.Warn("echo failed", zap.Uint32("cid", uint32(cid)), zap.Error(err))
			}
		}
	}
}
