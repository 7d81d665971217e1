// Package stream decodes long-lived response bodies into messages separated
// by a single delimiter byte. Empty and whitespace-only chunks are dropped.
//
//	dec := stream.NewDecoder(body, '\r', 0)
//	for {
//		msg, err := dec.Next()
//		if err == io.EOF {
//			break
//		}
//		...
//	}
package stream
