// Package bus bridges the simulator to external consumers over mangos
// (nanomsg) sockets: snapshots and progress go out on a PUB socket, reload
// requests come in on a PULL socket.
package bus

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/golang/snappy"
)

// Topics carried on the PUB socket.
const (
	TopicLoading = "edge-mesh.loading"
	TopicData    = "edge-mesh.data"
)

// ReloadRequest is the body a client pushes to ask for a re-broadcast.
const ReloadRequest = "reload"

const (
	flagRaw    byte = 0
	flagSnappy byte = 1
)

// ErrMalformed is returned for messages that do not follow the wire layout.
var ErrMalformed = errors.New("malformed bus message")

// Encode frames payload as topic, NUL, flag byte, body. Subscribers filter
// on the topic prefix including the NUL.
func Encode(topic string, payload []byte, compress bool) []byte {
	flag, body := flagRaw, payload
	if compress {
		flag, body = flagSnappy, snappy.Encode(nil, payload)
	}
	msg := make([]byte, 0, len(topic)+2+len(body))
	msg = append(msg, topic...)
	msg = append(msg, 0, flag)
	return append(msg, body...)
}

// Decode is the inverse of Encode.
func Decode(msg []byte) (string, []byte, error) {
	i := bytes.IndexByte(msg, 0)
	if i <= 0 || i+1 >= len(msg) {
		return "", nil, ErrMalformed
	}
	topic, flag, body := string(msg[:i]), msg[i+1], msg[i+2:]
	switch flag {
	case flagRaw:
		return topic, body, nil
	case flagSnappy:
		out, err := snappy.Decode(nil, body)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return topic, out, nil
	default:
		return "", nil, fmt.Errorf("%w: flag %d", ErrMalformed, flag)
	}
}

func topicPrefix(topic string) []byte {
	return append([]byte(topic), 0)
}
