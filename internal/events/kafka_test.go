package events

import "testing"

func TestKafkaTopicPerEventType(t *testing.T) {
	cases := []struct {
		prefix string
		want   map[Type]string
	}{
		{"commentgig", map[Type]string{
			SubOrderApproved:  "commentgig.sub_order.approved",
			SubOrderRejected:  "commentgig.sub_order.rejected",
			WithdrawalSettled: "commentgig.withdrawal.settled",
		}},
		{"commentgig.", map[Type]string{SubOrderApproved: "commentgig.sub_order.approved"}},
		{"", map[Type]string{SubOrderApproved: "sub_order.approved"}},
	}
	for _, tc := range cases {
		p, err := NewKafkaPublisher([]string{"localhost:9092"}, tc.prefix)
		if err != nil {
			t.Fatalf("NewKafkaPublisher(%q): %v", tc.prefix, err)
		}
		for typ, want := range tc.want {
			if got := p.topicByType[typ]; got != want {
				t.Errorf("prefix %q, %s: topic %q, want %q", tc.prefix, typ, got, want)
			}
		}
		_ = p.Close()
	}
}

func TestNewKafkaPublisherRequiresBroker(t *testing.T) {
	if _, err := NewKafkaPublisher(nil, "commentgig"); err == nil {
		t.Fatal("expected error without brokers")
	}
}
