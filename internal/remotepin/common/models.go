package common

// KeyValue is a single node setting, keyed by bucket name + key.
type KeyValue struct {
	Key   string `storm:"id"`
	Value []byte
}
