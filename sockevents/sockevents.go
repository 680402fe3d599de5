// Package sockevents streams checkpoint/restore progress events over a
// UNIX domain socket, in JSONL form, for operator-visible diagnostics.
package sockevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

//go:generate stringer -type=Kind

// Kind identifies what happened to a socket during checkpoint or restore.
type Kind int

const (
	// Collected names a socket registered in the checkpoint socket table.
	// No code in this module emits it; the collectors have no Server.
	Collected = Kind(iota)
	// Dumped is sent when a socket's canonical image record is written.
	Dumped
	// Deferred is sent when a socket is placed on the external-defer list.
	Deferred
	// Loaded is sent when a socket is registered from the restore-side
	// image loader.
	Loaded
	// Opened is sent when a restore-side descriptor is live.
	Opened
	// Connected is sent when a deferred connection job succeeds.
	Connected
)

// SocketEvent is one JSONL record sent to clients. Inode and Peer are
// checkpoint ids (0 meaning absent); all other fields are optional.
type SocketEvent struct {
	Event     Kind
	Timestamp time.Time
	Inode     uint32
	Peer      uint32 `json:",omitempty"`
	Name      string `json:",omitempty"`
}

// Server serves SocketEvents over a UNIX domain socket to any number of
// connected clients.
type Server struct {
	eventC       chan *SocketEvent
	filename     string
	clients      map[net.Conn]struct{}
	unixListener net.Listener
	mutex        sync.Mutex
	servingWG    sync.WaitGroup
}

// New makes a new server that serves clients on the provided UNIX domain
// socket path.
func New(filename string) *Server {
	c := make(chan *SocketEvent, 100)
	return &Server{
		filename: filename,
		eventC:   c,
		clients:  make(map[net.Conn]struct{}),
	}
}

func (s *Server) addClient(c net.Conn) {
	log.Println("Adding new socket event client", c)
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.clients[c] = struct{}{}
}

func (s *Server) removeClient(c net.Conn) {
	s.servingWG.Add(1)
	defer s.servingWG.Done()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, ok := s.clients[c]
	if !ok {
		log.Println("Tried to remove socket event client", c, "that was not present")
		return
	}
	delete(s.clients, c)
}

func (s *Server) sendToAllListeners(data string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for c := range s.clients {
		_, err := fmt.Fprintln(c, data)
		if err != nil {
			log.Println("Write to client", c, "failed with error", err, " - removing the client.")
			go s.removeClient(c)
			go c.Close()
		}
	}
}

func (s *Server) notifyClients(ctx context.Context) {
	s.servingWG.Add(1)
	defer s.servingWG.Done()
	for ctx.Err() == nil {
		event := <-s.eventC
		var b []byte
		var err error
		if event != nil {
			b, err = json.Marshal(*event)
		}
		if event == nil || err != nil {
			log.Printf("WARNING: Bad event received %v (err: %v)\n", event, err)
			continue
		}
		s.sendToAllListeners(string(b))
	}
}

// Listen binds the server's socket. Serve must be called afterward for
// connections to be accepted.
func (s *Server) Listen() error {
	s.servingWG.Add(1)
	var err error
	s.unixListener, err = net.Listen("unix", s.filename)
	return err
}

// Serve accepts and serves clients until ctx is canceled. Expected to run
// in a goroutine after Listen.
func (s *Server) Serve(ctx context.Context) error {
	defer s.servingWG.Done()
	derivedCtx, derivedCancel := context.WithCancel(ctx)
	defer derivedCancel()

	go s.notifyClients(derivedCtx)

	s.servingWG.Add(1)
	go func() {
		<-derivedCtx.Done()
		s.unixListener.Close()
		close(s.eventC)
		s.servingWG.Done()
	}()

	var err error
	for derivedCtx.Err() == nil {
		var conn net.Conn
		conn, err = s.unixListener.Accept()
		if err != nil {
			log.Printf("Could not Accept on socket %q: %s\n", s.filename, err)
			break
		}
		s.addClient(conn)
	}
	return err
}

// Emit queues an event for delivery to every connected client. Non-blocking
// callers that can't afford to wait on a full channel should select on
// default; dump/restore call sites here are low enough volume (one event
// per socket, not per syscall) that a blocking send is acceptable.
func (s *Server) Emit(kind Kind, inode, peer uint32, name string) {
	s.eventC <- &SocketEvent{
		Event:     kind,
		Timestamp: time.Now(),
		Inode:     inode,
		Peer:      peer,
		Name:      name,
	}
}
