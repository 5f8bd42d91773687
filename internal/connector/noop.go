package connector

import "context"

// NoopPM is the silent PM adapter used when no provider is configured. Every
// write succeeds without effect and every read comes back empty.
type NoopPM struct{}

func (NoopPM) FetchEpic(context.Context, string) (*Epic, error) { return &Epic{}, nil }

func (NoopPM) CreateEpic(context.Context, string, string) (string, error) { return "", nil }

func (NoopPM) CreateStory(context.Context, string, string, string, int) (string, error) {
	return "", nil
}

func (NoopPM) TransitionStory(context.Context, string, string) error { return nil }

func (NoopPM) CreateSubtask(context.Context, string, string) (string, error) { return "", nil }

func (NoopPM) TransitionSubtask(context.Context, string, string) error { return nil }

func (NoopPM) PostComment(context.Context, string, string) error { return nil }

func (NoopPM) PostSignOffReport(context.Context, string, string) error { return nil }

func (NoopPM) SearchIssues(context.Context, string) ([]Issue, error) { return nil, nil }

func (NoopPM) GetIssue(context.Context, string) (*Issue, error) { return &Issue{}, nil }

func (NoopPM) AddToActiveSprint(context.Context, string) error { return nil }

var _ PM = NoopPM{}
