package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChatModel 按顺序返回预设结果
type fakeChatModel struct {
	replies []string
	errs    []error
	calls   int
	lastOpt *model.Options
	lastIn  []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	i := f.calls
	f.calls++
	f.lastIn = input
	f.lastOpt = model.GetCommonOptions(nil, opts...)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return &schema.Message{Role: schema.Assistant, Content: reply}, nil
}

func (f *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestChatCompleter_Options(t *testing.T) {
	fm := &fakeChatModel{replies: []string{"  answer  "}}
	c := NewChatCompleter(fm, nil, 3)

	got, err := c.Complete(context.Background(), Request{
		Stage:       "test",
		System:      "sys",
		Prompt:      "user",
		Temperature: 0.1,
		MaxTokens:   500,
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", got)

	require.Len(t, fm.lastIn, 2)
	assert.Equal(t, schema.System, fm.lastIn[0].Role)
	assert.Equal(t, "user", fm.lastIn[1].Content)
	require.NotNil(t, fm.lastOpt.Temperature)
	assert.InDelta(t, 0.1, *fm.lastOpt.Temperature, 1e-6)
	require.NotNil(t, fm.lastOpt.MaxTokens)
	assert.Equal(t, 500, *fm.lastOpt.MaxTokens)
}

func TestChatCompleter_RetriesOn429(t *testing.T) {
	fm := &fakeChatModel{
		errs:    []error{errors.New("status 429: too many requests"), nil},
		replies: []string{"", "ok"},
	}
	c := NewChatCompleter(fm, nil, 3)
	c.baseDelay = time.Millisecond

	got, err := c.Complete(context.Background(), Request{Stage: "test"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, fm.calls)
}

func TestChatCompleter_NoRetryOnOtherErrors(t *testing.T) {
	fm := &fakeChatModel{errs: []error{errors.New("connection refused")}}
	c := NewChatCompleter(fm, nil, 3)

	_, err := c.Complete(context.Background(), Request{Stage: "test"})
	require.Error(t, err)
	assert.Equal(t, 1, fm.calls)
}

func TestChatCompleter_Empty(t *testing.T) {
	fm := &fakeChatModel{replies: []string{"   "}}
	_, err := NewChatCompleter(fm, nil, 0).Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose around", in: "Here you go: {\"a\":{\"b\":2}} thanks", want: `{"a":{"b":2}}`},
		{name: "no object", in: "nothing", want: "nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSON(tt.in))
		})
	}
}
