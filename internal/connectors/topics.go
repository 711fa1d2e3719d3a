package connectors

const (
	TopicConnStatus  = "conn.status"
	TopicRawFrameIn  = "raw.frame.in"
	TopicRawFrameOut = "raw.frame.out"
	TopicFrameError  = "frame.error"
)
