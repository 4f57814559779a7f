package model

// EventType 流式事件类型
type EventType string

const (
	EventSearchStart    EventType = "search_start"
	EventQueryGenerated EventType = "query_generated"
	EventReadingStart   EventType = "reading_start"
	EventSourceFound    EventType = "source_found"
	EventWritingStart   EventType = "writing_start"
	EventContentChunk   EventType = "content_chunk"
	EventEnd            EventType = "end"
	EventError          EventType = "error"
)

// query_generated 的查询种类
const (
	QueryKindOriginal = "original"
	QueryKindSub      = "sub_query"
)

// SourceRef source_found 事件携带的来源摘要
type SourceRef struct {
	ID            int     `json:"id"`
	URL           string  `json:"url"`
	Domain        string  `json:"domain"`
	Title         string  `json:"title"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date,omitempty"`
}

// StreamEvent 流式事件，按 Type 区分携带的字段
type StreamEvent struct {
	Type    EventType  `json:"type"`
	Query   string     `json:"query,omitempty"`
	Kind    string     `json:"query_type,omitempty"`
	Index   int        `json:"index,omitempty"`
	Source  *SourceRef `json:"source,omitempty"`
	Content string     `json:"content,omitempty"`
	Message string     `json:"message,omitempty"`
}

func SearchStart(query string) StreamEvent {
	return StreamEvent{Type: EventSearchStart, Query: query}
}

func OriginalQuery(query string) StreamEvent {
	return StreamEvent{Type: EventQueryGenerated, Query: query, Kind: QueryKindOriginal}
}

// SubQuery index 从 2 开始，1 留给原始查询
func SubQuery(query string, index int) StreamEvent {
	return StreamEvent{Type: EventQueryGenerated, Query: query, Kind: QueryKindSub, Index: index}
}

func ReadingStart() StreamEvent {
	return StreamEvent{Type: EventReadingStart}
}

func SourceFound(s Source) StreamEvent {
	return StreamEvent{Type: EventSourceFound, Source: &SourceRef{
		ID:            s.ID,
		URL:           s.URL,
		Domain:        s.Domain,
		Title:         s.Title,
		Score:         s.ProviderScore,
		PublishedDate: s.PublishedDate,
	}}
}

func WritingStart() StreamEvent {
	return StreamEvent{Type: EventWritingStart}
}

func ContentChunk(text string) StreamEvent {
	return StreamEvent{Type: EventContentChunk, Content: text}
}

func End() StreamEvent {
	return StreamEvent{Type: EventEnd}
}

func ErrorEvent(message string) StreamEvent {
	return StreamEvent{Type: EventError, Message: message}
}
