package network

import "io"

const BROADCAST_TOPIC = "RPIN"

func GetNetwork(ipfsClient *IPFS, lightclient *Lightclient) NetworkInterface {
	if ipfsClient == nil {
		lightclient.Setup()
		return lightclient
	} else {
		return ipfsClient
	}
}

// Close shuts down n if it owns resources, such as the embedded light client.
func Close(n NetworkInterface) error {
	if c, ok := n.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
