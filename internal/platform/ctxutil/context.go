package ctxutil

import "context"

type traceDataKey struct{}

type conversationDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	val := ctx.Value(traceDataKey{})
	if td, ok := val.(*TraceData); ok {
		return td
	}
	return nil
}

// ConversationData is filled in by handlers once they know who a request is
// about, so the request logger can report it.
type ConversationData struct {
	UserID    string
	SessionID string
}

func WithConversationData(ctx context.Context) (context.Context, *ConversationData) {
	cd := &ConversationData{}
	return context.WithValue(ctx, conversationDataKey{}, cd), cd
}

func GetConversationData(ctx context.Context) *ConversationData {
	if cd, ok := ctx.Value(conversationDataKey{}).(*ConversationData); ok {
		return cd
	}
	return nil
}

// SetConversation records ids on the request's ConversationData, if any.
func SetConversation(ctx context.Context, userID, sessionID string) {
	cd := GetConversationData(ctx)
	if cd == nil {
		return
	}
	if userID != "" {
		cd.UserID = userID
	}
	if sessionID != "" {
		cd.SessionID = sessionID
	}
}
