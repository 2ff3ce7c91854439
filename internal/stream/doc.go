// Package stream ingests candles from the OKX WebSocket business channel.
//
// Components:
//   - Client: one WebSocket connection with a read loop and OKX text keepalive
//   - Subscriber: subscribes to a candle channel and reconnects with backoff
//   - Runner: Subscriber -> Normalizer -> merger.Merger -> bar store
//
// Only bars the merger reports as closed are written. The forming candle is
// held in memory and is lost on restart; the REST poller covers that window.
package stream
