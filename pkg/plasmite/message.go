package plasmite

// Message is the thin envelope pairing a stored frame with its payload,
// returned by Cursor.Next and Get (§4.9 "Message API").
type Message struct {
	Seq         uint64
	TimestampNs uint64
	Flags       uint32
	Payload     []byte
}
