// Command echoserver wires every component of spec.md §2 together: a
// listening socket accepted onto the Reactor, framed echo of whatever a
// client sends, and a DB-backed worker group logging each message,
// exercised end to end the way the teacher's gateserver wires its own
// Poll/NetCore/dbmgr trio together in app/main.go.
package main

import (
	"flag"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ouyang506/gamenetcore/internal/buffer"
	"github.com/ouyang506/gamenetcore/internal/config"
	"github.com/ouyang506/gamenetcore/internal/framer"
	"github.com/ouyang506/gamenetcore/internal/idgen"
	"github.com/ouyang506/gamenetcore/internal/ioadapter"
	"github.com/ouyang506/gamenetcore/internal/log"
	"github.com/ouyang506/gamenetcore/internal/reactor"
	"github.com/ouyang506/gamenetcore/internal/socket"
	"github.com/ouyang506/gamenetcore/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config overlay (optional)")
	port := flag.Int("port", 9000, "listen port, overrides the config file's listen.port")
	dbDSN := flag.String("db-host", "", "MySQL host to log messages to (empty disables the DB worker group)")
	dbShards := flag.Int("db-shards", 4, "number of DB worker shards when -db-host is set")
	flag.Parse()

	logger := log.New(log.LogLevelDebug)
	logger.AddSink(log.NewStdoutSink())
	logger.Start()
	defer logger.Stop()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.LogFatal("config load failed: %v", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	cfg.Listen.Port = *port

	backend, err := reactor.NewEpollBackend()
	if err != nil {
		logger.LogFatal("epoll backend init failed: %v", err)
		os.Exit(1)
	}
	rr := reactor.New(backend)

	ids := idgen.NewConnIDGenerator()
	sockets := make(map[string]*socket.Socket)

	cbs := &echoCallbacks{sockets: sockets, logger: logger}

	if *dbDSN != "" {
		group, err := newDBGroup(*dbDSN, *dbShards, logger)
		if err != nil {
			logger.LogFatal("db worker group init failed: %v", err)
			os.Exit(1)
		}
		if err := group.Register(rr); err != nil {
			logger.LogFatal("registering db worker group failed: %v", err)
			os.Exit(1)
		}
		group.Start()
		defer func() {
			group.Stop()
			group.Wait()
		}()
		cbs.group = group
	}

	ln, err := socket.ListenReusable("tcp", net.JoinHostPort(cfg.Listen.Host, strconv.Itoa(cfg.Listen.Port)))
	if err != nil {
		logger.LogFatal("listen failed: %v", err)
		os.Exit(1)
	}
	lnFd, err := listenerFd(ln)
	if err != nil {
		logger.LogFatal("extracting listener fd failed: %v", err)
		os.Exit(1)
	}

	acceptor := &acceptor{
		fd:      lnFd,
		reactor: rr,
		cfg:     cfg,
		ids:     ids,
		cbs:     cbs,
		logger:  logger,
	}
	if err := rr.Watch(lnFd, reactor.EventRead, acceptor); err != nil {
		logger.LogFatal("watching listener fd failed: %v", err)
		os.Exit(1)
	}

	logger.LogInfo("echoserver listening on %s:%d", cfg.Listen.Host, cfg.Listen.Port)

	if err := rr.Run(func() {
		for _, s := range sockets {
			s.Stop(true, false)
		}
	}); err != nil {
		logger.LogFatal("reactor run exited with error: %v", err)
	}
}

// newDBGroup builds one worker.Group shard per logical DB connection,
// spreading message-log inserts across dbShards MySQL connections the way
// the teacher's mysqlproxy spreads queries across dbmgr instances.
func newDBGroup(host string, shards int, logger *log.Logger) (*worker.Group, error) {
	conns := make([]worker.Connector, shards)
	for i := range conns {
		conns[i] = worker.NewDBConnector(worker.DBConfig{
			Username:    "root",
			Password:    "",
			Host:        host,
			Port:        3306,
			Database:    "gamenetcore",
			PoolMaxConn: 4,
		})
	}
	return worker.NewGroup(conns, worker.DefaultConfig(),
		func(shard int) {
			logger.LogInfo("db worker shard %d ready", shard)
		},
		func(shard int, res worker.Result) {
			if res.Err != nil {
				logger.LogError("db worker shard %d request %d failed: %v", shard, res.Qid, res.Err)
			}
		},
	)
}

// acceptor implements reactor.Callback for the listening fd, mirroring the
// teacher's loopAccept: accept, apply socket options, hand the connection
// to a new Socket.
type acceptor struct {
	fd      int
	reactor *reactor.Reactor
	cfg     *config.RuntimeConfig
	ids     *idgen.ConnIDGenerator
	cbs     *echoCallbacks
	logger  *log.Logger
}

func (a *acceptor) OnFdEvent(fd int, mask reactor.EventMask) {
	for {
		nfd, _, err := unix.Accept(a.fd)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			a.logger.LogError("accept error: %v", err)
			return
		}
		if err := socket.ApplyAcceptOptions(nfd); err != nil {
			a.logger.LogError("apply accept options failed: %v", err)
			unix.Close(nfd)
			continue
		}
		if a.cfg.Socket.KeepAliveIdleMs > 0 {
			idle := time.Duration(a.cfg.Socket.KeepAliveIdleMs) * time.Millisecond
			interval := time.Duration(a.cfg.Socket.KeepAliveIntervalMs) * time.Millisecond
			if err := socket.ApplyKeepAliveTuning(nfd, idle, a.cfg.Socket.KeepAliveCount, interval); err != nil {
				a.logger.LogWarn("keepalive tuning failed for fd=%d: %v", nfd, err)
			}
		}
		connID := a.ids.Next()
		s := socket.New(socket.Params{
			ConnID:         connID,
			ConnType:       socket.ConnTypeClientToServer,
			Fd:             nfd,
			SendChunkMax:   a.cfg.Buffer.SendChunkMax,
			RecvChunkMax:   a.cfg.Buffer.RecvChunkMax,
			ChunkCap:       a.cfg.Buffer.ChunkCapacity,
			OverflowPolicy: overflowPolicy(a.cfg.Buffer.OverflowPolicy),
			Adapter:        ioadapter.NewPlain(nfd),
			Framer:         framer.NewLengthPrefix(2, 0),
			Reactor:        a.reactor,
			Callbacks:      a.cbs,
			FlushGrace:     time.Duration(a.cfg.Socket.FlushGraceMs) * time.Millisecond,
		})
		a.cbs.sockets[connID] = s
		a.logger.LogInfo("accepted %s (fd=%d)", connID, nfd)
	}
}

// echoCallbacks implements socket.Callbacks: every inbound message is
// echoed straight back and logged to the DB worker group, per spec.md §6's
// "Embedding -> Worker: submit" interface.
type echoCallbacks struct {
	sockets map[string]*socket.Socket
	logger  *log.Logger
	group   *worker.Group
}

func (c *echoCallbacks) OnMessage(connID string, msg []byte) {
	if s, ok := c.sockets[connID]; ok {
		if err := s.Send(msg); err != nil {
			c.logger.LogError("send to %s failed: %v", connID, err)
		}
	}
	if c.group != nil {
		c.group.Submit(connID, worker.Request{
			Qid:     0,
			Payload: worker.Exec{SQL: "INSERT INTO message_log (conn_id, body) VALUES (?, ?)", Args: []interface{}{connID, string(msg)}},
		})
	}
}

func (c *echoCallbacks) OnClose(connID string, reason socket.CloseReason) {
	delete(c.sockets, connID)
	c.logger.LogInfo("closed %s (reason=%d)", connID, reason)
}

func overflowPolicy(name string) buffer.OverflowPolicy {
	switch name {
	case "drop_oldest":
		return buffer.OverflowDropOldest
	case "drop_newest":
		return buffer.OverflowDropNewest
	default:
		return buffer.OverflowDisconnect
	}
}

func listenerFd(ln net.Listener) (int, error) {
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return 0, errNotTCP
	}
	rawConn, err := tcpLn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	var ctrlErr error
	err = rawConn.Control(func(s uintptr) {
		dupFd, dupErr := unix.Dup(int(s))
		if dupErr != nil {
			ctrlErr = dupErr
			return
		}
		fd = dupFd
	})
	if err != nil {
		return 0, err
	}
	if ctrlErr != nil {
		return 0, ctrlErr
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return 0, err
	}
	return fd, nil
}

var errNotTCP = &net.OpError{Op: "listen", Err: os.ErrInvalid}
