package rawio

import (
	"syscall"
	"testing"
)

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM|syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	t.Cleanup(func() {
		_ = syscall.Close(fds[0])
		_ = syscall.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestRecvNotReadyOnEmptySocket(t *testing.T) {
	a, _ := socketpair(t)
	res := Recv(a, make([]byte, 16))
	if res.Outcome != NotReady {
		t.Fatalf("want NotReady, got %v (err=%v)", res.Outcome, res.Err)
	}
}

func TestSendRecvProgressed(t *testing.T) {
	a, b := socketpair(t)
	sendRes := Send(a, []byte("ping"))
	if sendRes.Outcome != Progressed || sendRes.N != 4 {
		t.Fatalf("send: got %+v", sendRes)
	}
	buf := make([]byte, 16)
	recvRes := Recv(b, buf)
	if recvRes.Outcome != Progressed || recvRes.N != 4 {
		t.Fatalf("recv: got %+v", recvRes)
	}
	if string(buf[:recvRes.N]) != "ping" {
		t.Fatalf("got %q", buf[:recvRes.N])
	}
}

func TestRecvDisconnectedOnPeerClose(t *testing.T) {
	a, b := socketpair(t)
	_ = syscall.Close(b)
	res := Recv(a, make([]byte, 16))
	if res.Outcome != Disconnected {
		t.Fatalf("want Disconnected, got %v (err=%v)", res.Outcome, res.Err)
	}
}

func TestRecvZeroLengthBuffer(t *testing.T) {
	a, _ := socketpair(t)
	res := Recv(a, nil)
	if res.Outcome != Fatal {
		t.Fatalf("want Fatal, got %v", res.Outcome)
	}
}
