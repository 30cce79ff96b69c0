package ipc

import (
	"context"
	"testing"
	"time"

	"nucleuscore/defs"
	"nucleuscore/limits"
	"nucleuscore/mem"
	"nucleuscore/sched"
)

func mkharness(t *testing.T) (*sched.Sched_t, *Table_t) {
	t.Helper()
	phys := mem.Mkphysmem(256)
	phys.InitZeropg()
	s := sched.MkSched(2, phys)
	return s, MkTable(s)
}

// End-to-end scenario 4 from spec.md §8: IPC rendezvous. Task A
// creates a port, registers it as "svc.echo", blocks in recv. Task B
// looks up "svc.echo", sends a message with payload "ping". A
// unblocks, reads "ping", sender_pid = B.id.
func TestIpcRendezvous(t *testing.T) {
	s, tbl := mkharness(t)
	result := make(chan Message_t, 1)
	errs := make(chan defs.Err_t, 1)
	ready := make(chan struct{})

	var a, b *sched.Task_t
	a = s.Create(nil, func(ctx context.Context, at *sched.Task_t) {
		port, err := tbl.Create(at.Pid)
		if err != 0 {
			errs <- err
			close(ready)
			return
		}
		if err := tbl.Register(port, "svc.echo"); err != 0 {
			errs <- err
			close(ready)
			return
		}
		close(ready)
		msg, err := tbl.Recv(port, at, true)
		if err != 0 {
			errs <- err
			return
		}
		result <- msg
	})
	if a == nil {
		t.Fatal("Create a failed")
	}

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("A never registered its port")
	}

	b = s.Create(nil, func(ctx context.Context, bt *sched.Task_t) {
		var port defs.Portid_t
		var err defs.Err_t
		deadline := time.Now().Add(5 * time.Second)
		for {
			port, err = tbl.Lookup("svc.echo")
			if err == 0 || time.Now().After(deadline) {
				break
			}
			s.Yield(bt)
		}
		if err != 0 {
			errs <- err
			return
		}
		var msg Message_t
		msg.PayloadSize = copy(msg.Payload[:], "ping")
		if err := tbl.Send(port, msg, bt.Tid); err != 0 {
			errs <- err
		}
	})
	if b == nil {
		t.Fatal("Create b failed")
	}

	select {
	case msg := <-result:
		got := string(msg.Payload[:msg.PayloadSize])
		if got != "ping" {
			t.Fatalf("payload = %q, want %q", got, "ping")
		}
		if msg.SenderId != b.Tid {
			t.Fatalf("sender_id = %v, want %v", msg.SenderId, b.Tid)
		}
	case err := <-errs:
		t.Fatalf("rendezvous failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for rendezvous")
	}
}

// Boundary behavior from spec.md §8: ipc_send to a full queue returns
// QueueFull; a concurrent recv must cause the next send to succeed.
func TestIpcSendQueueFull(t *testing.T) {
	s, tbl := mkharness(t)
	done := make(chan defs.Err_t, 1)

	owner := s.Create(nil, func(ctx context.Context, ot *sched.Task_t) {
		port, err := tbl.Create(ot.Pid)
		if err != 0 {
			done <- err
			return
		}

		var msg Message_t
		msg.PayloadSize = copy(msg.Payload[:], "x")
		for i := 0; i < limits.IPC_PORT_QUEUE_SIZE; i++ {
			if err := tbl.Send(port, msg, ot.Tid); err != 0 {
				done <- err
				return
			}
		}
		if err := tbl.Send(port, msg, ot.Tid); err != -defs.EQFULL {
			done <- err
			return
		}

		if _, err := tbl.Recv(port, ot, false); err != 0 {
			done <- err
			return
		}
		done <- tbl.Send(port, msg, ot.Tid)
	})
	if owner == nil {
		t.Fatal("Create failed")
	}

	select {
	case err := <-done:
		if err != 0 {
			t.Fatalf("final send after drain should succeed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}
