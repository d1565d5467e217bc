package scheduler

import "testing"

func TestAddJobValidatesExpression(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()

	if err := s.AddJob("0 * * * *", func() {}); err != nil {
		t.Fatalf("valid expression rejected: %v", err)
	}
	if s.Jobs() != 1 {
		t.Errorf("jobs = %d, want 1", s.Jobs())
	}
	if err := s.AddJob("not a cron line", func() {}); err == nil {
		t.Fatal("invalid expression accepted")
	}
	if err := s.AddJob("0 0 * * * *", func() {}); err == nil {
		t.Fatal("6-field expression accepted by 5-field parser")
	}
}
