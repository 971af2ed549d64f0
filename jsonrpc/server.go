package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"eval_fpgaio/log"
)

const MAX_REQUEST_LEN = 65536

var ErrRequestTooLong = errors.New("request too long")

type APIRequest struct {
	Command   string      `json:"command"`
	Parameter interface{} `json:"parameter"`
}

type ServerHandlerFunc func(*Server, net.Conn, *APIRequest, []byte, error) error

type Server struct {
	listener       net.Listener
	done           chan struct{}
	wg             sync.WaitGroup
	handler        ServerHandlerFunc
	bConnKeepAlive bool
	// IdleTimeout closes a kept-alive connection with no request in flight.
	IdleTimeout time.Duration

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewServer(addr string, handler ServerHandlerFunc, bKeepAlive bool) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if handler == nil {
		handler = DefaultServerHandler
	}
	s := &Server{
		listener:       l,
		done:           make(chan struct{}),
		handler:        handler,
		bConnKeepAlive: bKeepAlive,
		IdleTimeout:    5 * time.Minute,
		conns:          make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	log.Infof("API listening on %s", l.Addr())
	return s, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) ListenAndServe() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				log.Errorf("Accept error %v", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

// Shutdown stops accepting, closes open connections and waits for handlers until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.done)
	s.listener.Close()
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readRequest returns one newline terminated request without the newline.
func readRequest(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		buf = append(buf, chunk...)
		if len(buf) > MAX_REQUEST_LEN {
			return nil, ErrRequestTooLong
		}
		if !isPrefix {
			return buf, nil
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	log.Debugf("Connection from %v", conn.RemoteAddr())
	defer conn.Close()

	r := bufio.NewReaderSize(conn, 4096)
	for {
		if s.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.IdleTimeout)); err != nil {
				log.Debugf("err %v", err)
			}
		}
		buf, err := readRequest(r)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			log.Debugf("handleConnection EOF %v", err)
			break
		} else if err != nil {
			log.Debugf("handleConnection Err %v", err)
			break
		}
		if len(buf) == 0 {
			continue
		}
		log.Debugf("request %s", buf)

		req := APIRequest{}
		err = json.Unmarshal(buf, &req)
		if err = s.handler(s, conn, &req, buf, err); err != nil {
			log.Errorf("%v: %v", conn.RemoteAddr(), err)
			break
		}

		if !s.bConnKeepAlive {
			break
		}
	}

	log.Debugf("Server disconnected from %v", conn.RemoteAddr())
}

func DefaultServerHandler(s *Server, conn net.Conn, req *APIRequest, rawbuf []byte, err error) error {
	resp := fmt.Sprintf("received from %v: %v, error: %v\n", conn.RemoteAddr(), req, err)
	log.Infof("%s", resp)
	_, err = conn.Write([]byte(resp))
	return err
}
