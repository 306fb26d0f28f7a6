package test

import (
	"context"
	"testing"

	"yeectl/client"
	"yeectl/codec"
	"yeectl/message"
)

func setupBulbAndClient(b *testing.B) *client.Bulb {
	svr := startBulb(b)
	host, port := addrOf(svr)
	cli, err := client.Connect(context.Background(), host, port)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { cli.Close() })
	return cli
}

// one goroutine, one call at a time
func BenchmarkSerialCall(b *testing.B) {
	cli := setupBulbAndClient(b)
	ctx := context.Background()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := cli.GetProp(ctx, client.PropertyPower); err != nil {
			b.Fatal(err)
		}
	}
}

// many goroutines multiplexed over one connection
func BenchmarkConcurrentCall(b *testing.B) {
	cli := setupBulbAndClient(b)
	ctx := context.Background()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := cli.GetProp(ctx, client.PropertyPower, client.PropertyBright); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// codec only, no network
func BenchmarkCodecRequest(b *testing.B) {
	cdc := codec.New()
	req := &message.Request{ID: 1, Method: "set_rgb", Params: []any{16711680, "smooth", 500}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cdc.EncodeRequest(req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCodecDecode(b *testing.B) {
	cdc := codec.New()
	lines := [][]byte{
		[]byte(`{"id":7,"result":["on","100","4000"]}`),
		[]byte(`{"method":"props","params":{"power":"on","bright":"10"}}`),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := cdc.Decode(lines[i%2]); err != nil {
			b.Fatal(err)
		}
	}
}
