package redis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"sync"
	"time"

	"github.com/koios/matrx-watchface/pkg/models"
	"go.uber.org/zap"
)

// DeviceChannel is the pub/sub channel frames are published on
func DeviceChannel(deviceID string) string {
	return fmt.Sprintf("device:%s", deviceID)
}

// FramePublisher mirrors presented frames to the device channel. Only the
// newest frame is kept; a frame still waiting when the next one arrives is
// dropped.
type FramePublisher struct {
	client   *Client
	deviceID string
	channel  string
	logger   *zap.Logger

	pending chan *image.RGBA
	seq     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewFramePublisher creates a stopped publisher
func NewFramePublisher(client *Client, deviceID string, logger *zap.Logger) *FramePublisher {
	ctx, cancel := context.WithCancel(context.Background())
	return &FramePublisher{
		client:   client,
		deviceID: deviceID,
		channel:  DeviceChannel(deviceID),
		logger:   logger,
		pending:  make(chan *image.RGBA, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Present queues a frame without blocking
func (p *FramePublisher) Present(img *image.RGBA) {
	for {
		select {
		case p.pending <- img:
			return
		default:
		}
		// replace the frame nobody has picked up yet
		select {
		case <-p.pending:
		default:
		}
	}
}

// Start launches the publishing goroutine
func (p *FramePublisher) Start() {
	p.logger.Info("Starting frame publisher", zap.String("channel", p.channel))
	p.wg.Add(1)
	go p.run()
}

// Stop ends publishing; a queued frame is dropped
func (p *FramePublisher) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("Frame publisher stopped")
}

func (p *FramePublisher) run() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case img := <-p.pending:
			p.seq++
			body, err := EncodeFrameMessage(p.deviceID, p.seq, img, time.Now())
			if err != nil {
				p.logger.Error("Failed to encode frame", zap.Error(err))
				continue
			}
			ctx, cancel := context.WithTimeout(p.ctx, 3*time.Second)
			err = p.client.Publish(ctx, p.channel, body)
			cancel()
			if err != nil {
				p.logger.Warn("Failed to publish frame",
					zap.Uint64("sequence", p.seq),
					zap.Error(err))
				continue
			}
			p.logger.Debug("Published frame",
				zap.String("channel", p.channel),
				zap.Uint64("sequence", p.seq),
				zap.Int("bytes", len(body)))
		}
	}
}

// EncodeFrameMessage builds the JSON frame payload with the image as base64 PNG
func EncodeFrameMessage(deviceID string, seq uint64, img image.Image, at time.Time) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode frame png: %w", err)
	}

	b := img.Bounds()
	msg := models.FrameMessage{
		Type:       models.FrameMessageType,
		DeviceID:   deviceID,
		Sequence:   seq,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Frame:      base64.StdEncoding.EncodeToString(buf.Bytes()),
		RenderedAt: at.UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame message: %w", err)
	}
	return body, nil
}
