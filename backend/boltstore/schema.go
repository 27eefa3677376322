package boltstore

// The schema for the bolt database is described in here. External users of
// the database should consider this an internal implementation detail,
// subject to change without notice.
//
// A single "objects" bucket maps normalized keys to bson-encoded records;
// bolt's key ordering gives listings their order and lets pagination
// resume after an arbitrary key.

import (
	"time"

	"github.com/keyfs-io/keyfs"
	"gopkg.in/mgo.v2/bson"
)

var objectsBucket = []byte("objects")

type boltObject struct {
	Dir          bool
	Data         []byte
	ContentType  string
	Durability   int
	LastModified time.Time
	ETag         string
}

func (b *boltObject) info(key string) *keyfs.ObjectInfo {
	return &keyfs.ObjectInfo{
		Key:          keyfs.Key(key),
		Dir:          b.Dir,
		Size:         int64(len(b.Data)),
		LastModified: b.LastModified,
		ContentType:  b.ContentType,
		ETag:         b.ETag,
		Durability:   b.Durability,
	}
}

func decodeObject(data []byte) (*boltObject, error) {
	var obj boltObject
	if err := bson.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

func (b *boltObject) encode() ([]byte, error) {
	return bson.Marshal(b)
}
