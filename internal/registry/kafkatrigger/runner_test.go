package kafkatrigger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mohammed-shakir/stac-federation/internal/core/config"
)

type fakeTrigger struct {
	mu   sync.Mutex
	srcs []string
}

func (f *fakeTrigger) Trigger(src string) {
	f.mu.Lock()
	f.srcs = append(f.srcs, src)
	f.mu.Unlock()
}

func (f *fakeTrigger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.srcs)
}

type sess struct {
	ctx    context.Context
	claims map[string][]int32
	mu     sync.Mutex
	marked []int64
}

func (s *sess) Claims() map[string][]int32 { return s.claims }
func (s *sess) MemberID() string           { return "" }
func (s *sess) GenerationID() int32        { return 0 }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}
func (s *sess) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *sess) MarkOffset(_ string, _ int32, _ int64, _ string)  {}
func (s *sess) Context() context.Context                         { return s.ctx }
func (s *sess) Commit()                                          {}

type claim struct {
	part int32
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "stac-collections" }
func (c *claim) Partition() int32                         { return c.part }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 0 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func eventBytes(ev Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}

func newRunner(t *testing.T, trig Triggerer) (*Runner, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	r := New(Config{Enabled: true, Brokers: []string{"x"}, Topic: "stac-collections"}, trig, Options{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Register: reg,
	})
	return r, reg
}

func TestEvent_Validate(t *testing.T) {
	now := time.Now().UTC()
	for _, tc := range []struct {
		ev Event
		ok bool
	}{
		{Event{Version: 1, Op: "refresh", TS: now}, true},
		{Event{Version: 1, Op: "upsert", Collection: "c1", TS: now}, true},
		{Event{Version: 1, Op: "delete", TS: now}, false},
		{Event{Version: 2, Op: "refresh", TS: now}, false},
		{Event{Version: 1, Op: "truncate", TS: now}, false},
		{Event{Version: 1, Op: "refresh"}, false},
	} {
		if err := tc.ev.Validate(); (err == nil) != tc.ok {
			t.Fatalf("%+v: err=%v want ok=%v", tc.ev, err, tc.ok)
		}
	}
}

func TestConsumeClaim_TriggersAndMarksEverything(t *testing.T) {
	ft := &fakeTrigger{}
	r, reg := newRunner(t, ft)
	g := &groupHandler{process: r.handleMessage}

	ts := time.Now().UTC()
	ch := make(chan *sarama.ConsumerMessage, 4)
	ch <- &sarama.ConsumerMessage{Offset: 1, Value: eventBytes(Event{Version: 1, Op: "refresh", TS: ts})}
	ch <- &sarama.ConsumerMessage{Offset: 2, Value: []byte("not json")}
	ch <- &sarama.ConsumerMessage{Offset: 3, Value: eventBytes(Event{Version: 1, Op: "upsert", Collection: "c1"}), Timestamp: ts}
	ch <- &sarama.ConsumerMessage{Offset: 4, Value: eventBytes(Event{Version: 7, Op: "refresh", TS: ts})}
	close(ch)

	s := &sess{ctx: t.Context()}
	if err := g.ConsumeClaim(s, &claim{msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.marked) != 4 {
		t.Fatalf("marked=%v want all 4 offsets", s.marked)
	}
	if ft.count() != 2 {
		t.Fatalf("triggers=%d want 2", ft.count())
	}
	want := `
# HELP refresh_trigger_msgs_total Registry refresh trigger messages by result.
# TYPE refresh_trigger_msgs_total counter
refresh_trigger_msgs_total{result="error"} 2
refresh_trigger_msgs_total{result="ok"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "refresh_trigger_msgs_total"); err != nil {
		t.Fatalf("metrics: %v", err)
	}
}

func TestHandleMessage_SequenceDedupe(t *testing.T) {
	ft := &fakeTrigger{}
	r, _ := newRunner(t, ft)
	ctx := context.Background()
	ts := time.Now().UTC()

	send := func(seq uint64, src string) {
		ev := Event{Version: 1, Op: "upsert", Collection: "c1", Source: src, Seq: seq, TS: ts}
		if err := r.handleMessage(ctx, &sarama.ConsumerMessage{Value: eventBytes(ev)}); err != nil {
			t.Fatalf("handleMessage: %v", err)
		}
	}
	send(2, "a")
	send(2, "a")
	send(1, "a")
	send(1, "b")
	send(3, "a")
	if ft.count() != 3 {
		t.Fatalf("triggers=%d want 3", ft.count())
	}
}

func TestReadiness(t *testing.T) {
	r, _ := newRunner(t, &fakeTrigger{})
	if ok, _ := r.Readiness(); ok {
		t.Fatal("enabled runner without assignment must not be ready")
	}
	r.onAssign(&sess{ctx: context.Background(), claims: map[string][]int32{"t": {0, 1, 2}}})
	if ok, n := r.Readiness(); !ok || n != 3 {
		t.Fatalf("after assign: ok=%v n=%d", ok, n)
	}
	r.onRevoke(nil)
	if ok, _ := r.Readiness(); ok {
		t.Fatal("ready after revoke")
	}

	off := New(Config{}, nil, Options{})
	if ok, _ := off.Readiness(); !ok {
		t.Fatal("disabled runner should report ready")
	}
	if err := off.Start(context.Background()); err != nil {
		t.Fatalf("disabled Start: %v", err)
	}
	off.Stop()
}

func TestFromConfig(t *testing.T) {
	c := FromConfig(config.KafkaTriggerCfg{Enabled: true, Brokers: " k1:9092, ,k2:9092", Topic: "t", GroupID: "g"})
	if !c.Enabled || len(c.Brokers) != 2 || c.Brokers[1] != "k2:9092" || c.SessionTimeout == 0 {
		t.Fatalf("config=%+v", c)
	}
}

func TestRefreshSeqs_PerCollection(t *testing.T) {
	s := newRefreshSeqs(0)
	ev := func(coll string, seq uint64) Event {
		return Event{Version: 1, Op: "upsert", Collection: coll, Source: "a", Seq: seq}
	}
	if !s.fresh(ev("c1", 5)) || !s.fresh(ev("c2", 1)) {
		t.Fatal("first sequence per collection must apply")
	}
	if s.fresh(ev("c1", 5)) || s.fresh(ev("c1", 4)) {
		t.Fatal("stale c1 sequence applied")
	}
	if !s.fresh(ev("", 1)) {
		t.Fatal("whole document refresh shares no sequence with collections")
	}
	if !s.fresh(ev("c1", 0)) || !s.fresh(ev("c1", 0)) {
		t.Fatal("unsequenced events always apply")
	}
}
