package crypto

import (
	"encoding/base64"
	"os"

	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/sirupsen/logrus"
	"github.com/tezoscommons/rpin/internal/remotepin/db"
)

const EnvSecretKey = "P2P_SECRETKEY"

var (
	configBucket = []byte("Config")
	keyName      = []byte("libp2p_private_key")
)

// GetPrivateKey returns the node key from the environment, the database or,
// failing both, a newly generated Ed25519 key which is saved for next time.
func GetPrivateKey(db *db.StormDB, l *logrus.Entry) []byte {
	log := l.WithField("source", "config")
	if val, ok := os.LookupEnv(EnvSecretKey); ok {
		log.Info("Using private key from env")
		valb, err := base64.StdEncoding.DecodeString(val)
		if err != nil {
			log.Fatal("invalid ", EnvSecretKey, ": ", err)
		}
		return valb
	}

	val, ok := db.Get(configBucket, keyName)
	if ok >= 1 {
		log.Info("Using private key from BoltDb")
		return val
	}

	// make new key and save in db
	priv, _, err := crypto.GenerateKeyPair(crypto.Ed25519, 256)
	if err != nil {
		panic(err)
	}
	b, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.Write(configBucket, keyName, b); err != nil {
		log.Fatal(err)
	}
	log.Info("Generated new private key")
	return b
}
