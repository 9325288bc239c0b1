package db

import (
	"github.com/asdine/storm/v3"
	"github.com/sirupsen/logrus"
	"github.com/tezoscommons/rpin/internal/remotepin/common"
	"github.com/tezoscommons/rpin/internal/remotepin/config"
)

type StormDB struct {
	log   *logrus.Entry
	storm *storm.DB
}

func NewStormDB(c *config.Config, l *logrus.Entry) *StormDB {
	d, err := Open(c.DB.Storm, l)
	if err != nil {
		l.WithField("source", "boltdb").Fatal(err)
		return nil
	}
	return d
}

func Open(path string, l *logrus.Entry) (*StormDB, error) {
	d := StormDB{}
	d.log = l.WithField("source", "boltdb")
	db, err := storm.Open(path)
	if err != nil {
		return nil, err
	}
	d.storm = db
	return &d, nil
}

func (d *StormDB) Close() error {
	return d.storm.Close()
}

func (d *StormDB) Write(bucketName, key, value []byte) error {
	obj := common.KeyValue{
		Key:   string(bucketName) + "/" + string(key),
		Value: value,
	}
	return d.storm.Save(&obj)
}

func (d *StormDB) Get(bucketName, key []byte) (val []byte, length int) {
	obj := common.KeyValue{}
	err := d.storm.One("Key", string(bucketName)+"/"+string(key), &obj)
	if err != nil && err != storm.ErrNotFound {
		d.log.Warn(err)
	}
	return obj.Value, len(obj.Value)
}
