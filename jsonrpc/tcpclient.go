package jsonrpc

import (
	"bufio"
	"net"
	"sync"
	"time"

	"eval_fpgaio/log"
	"eval_fpgaio/util"
)

const (
	MAX_RECEIVE_BUF = 65536
)

// TCPClient sends one request line and reads one reply line per call.
type TCPClient struct {
	Addr         string
	Conn         net.Conn
	TxBytes      int
	RxBytes      int
	Errors       int
	RedialCount  int
	LastErrorTS  float64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration
	reader       *bufio.Reader
	mx           sync.Mutex
}

// NewTCPClient does not fail when the server is down; the first call dials again.
func NewTCPClient(addr string) *TCPClient {
	my := &TCPClient{
		Addr:         addr,
		ReadTimeout:  time.Second * 15,
		WriteTimeout: time.Second * 15,
		DialTimeout:  time.Second * 1,
	}
	if err := my.dial(); err != nil {
		log.Debugf("can't connect to %s err %v", my.Addr, err)
	}
	return my
}

func (my *TCPClient) dial() error {
	myDialer := net.Dialer{Timeout: my.DialTimeout}
	conn, err := myDialer.Dial("tcp", my.Addr)
	if err != nil {
		my.Conn = nil
		return err
	}
	my.Conn = conn
	my.reader = bufio.NewReaderSize(conn, 4096)
	return nil
}

func (my *TCPClient) redial() error {
	if my.Conn != nil {
		my.Conn.Close()
	}
	err := my.dial()
	my.RedialCount++
	if err != nil {
		log.Debugf("can't connect to %s err %v", my.Addr, err)
		my.fail()
	} else {
		my.Errors = 0
	}
	return err
}

func (my *TCPClient) fail() {
	my.Errors++
	my.LastErrorTS = util.NowInSec()
}

func (my *TCPClient) sendAndReceive(reqbuf []byte) ([]byte, error) {
	if my.Conn == nil || my.Errors > 0 {
		if err := my.redial(); err != nil {
			return nil, err
		}
	}

	if n := len(reqbuf); n == 0 || reqbuf[n-1] != '\n' {
		reqbuf = append(reqbuf, '\n')
	}
	if err := my.Conn.SetWriteDeadline(time.Now().Add(my.WriteTimeout)); err != nil {
		log.Debugf("err %v", err)
	}
	n, err := my.Conn.Write(reqbuf)
	if err != nil {
		log.Errorf("Sent error %v", err)
		my.fail()
		return nil, err
	}
	my.TxBytes += n

	if err := my.Conn.SetReadDeadline(time.Now().Add(my.ReadTimeout)); err != nil {
		log.Debugf("err %v", err)
	}
	reply, err := readRequest(my.reader)
	if err != nil {
		log.Errorf("Rx error %v", err)
		my.fail()
		return nil, err
	}
	my.RxBytes += len(reply) + 1
	return reply, nil
}

// SendAndReceive retries once on a fresh connection so that a dropped
// socket is transparent to callers.
func (my *TCPClient) SendAndReceive(reqbuf []byte) ([]byte, error) {
	my.mx.Lock()
	defer my.mx.Unlock()

	reply, err := my.sendAndReceive(reqbuf)
	if err != nil {
		reply, err = my.sendAndReceive(reqbuf)
	}
	return reply, err
}

func (my *TCPClient) Shutdown() {
	my.mx.Lock()
	defer my.mx.Unlock()

	if my.Conn != nil {
		my.Conn.Close()
		my.Conn = nil
	}
}
