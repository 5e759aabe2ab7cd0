package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard/events"
)

const (
	streamBuffer    = 32
	streamKeepAlive = 25 * time.Second
)

type streamFrame struct {
	kind string
	data []byte
}

// streamEvents forwards bus events to the client as server-sent events. The
// first frame is the current board. A client that falls behind loses
// events rather than stalling the publisher.
func streamEvents(reader BoardReader, bus *events.Bus, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		frames := make(chan streamFrame, streamBuffer)
		sub := bus.Subscribe(func(ev events.Event) {
			data, err := sonic.Marshal(ev)
			if err != nil {
				logger.WithError(err).WithField("kind", ev.Kind()).Warn("stream: encode event")
				return
			}
			select {
			case frames <- streamFrame{kind: string(ev.Kind()), data: data}:
			default:
				logger.WithField("kind", ev.Kind()).Debug("stream: client too slow; dropping event")
			}
		})
		defer sub.Unsubscribe()

		initial, err := sonic.Marshal(boardResponse{Columns: reader.Columns(), Progress: reader.Progress()})
		if err != nil {
			return err
		}
		if err := writeFrame(c, streamFrame{kind: "board", data: initial}); err != nil {
			return err
		}
		flusher.Flush()

		ctx := c.Request().Context()
		keepAlive := time.NewTicker(streamKeepAlive)
		defer keepAlive.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case f := <-frames:
				if err := writeFrame(c, f); err != nil {
					logger.WithError(err).Debug("stream: client gone")
					return nil
				}
			case <-keepAlive.C:
				if _, err := c.Response().Write([]byte(": keep-alive\n\n")); err != nil {
					return nil
				}
			}
			flusher.Flush()
		}
	}
}

func writeFrame(c echo.Context, f streamFrame) error {
	w := c.Response()
	if _, err := w.Write([]byte("event: " + f.kind + "\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(f.data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
