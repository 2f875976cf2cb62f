package synthvid

import (
	"fmt"
	"net"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/synthvid/synthvid/config"
	"github.com/synthvid/synthvid/util"
)

type m = map[string]any

// Main wires the full control plane from config: logging, the graphics
// channel, the protocol engine and the stats sink. This is a nonblocking
// build step, nothing talks to the remote until Control.Start.
func Main(c *config.C, configTest bool, buildVersion string, logger *logrus.Logger) (*Control, error) {
	l := logger
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
	}

	err := configLogger(l, c)
	if err != nil {
		return nil, util.NewContextualError("Failed to configure the logger", nil, err)
	}

	c.RegisterReloadCallback(func(c *config.C) {
		err := configLogger(l, c)
		if err != nil {
			l.WithError(err).Error("Failed to configure the logger")
		}
	})

	resolutions, err := parseResolutions(c)
	if err != nil {
		return nil, util.NewContextualError("Could not parse display.resolutions", nil, err)
	}

	engCfg := EngineConfig{
		VRAMBase:            c.GetUint64("vram.base", DefaultVRAMBase),
		VRAMOverrideBytes:   c.GetUint64("vram.size_bytes", 0),
		AdvertisedVRAMBytes: c.GetUint64("vram.advertised_bytes", 0),
		Resolutions:         resolutions,
		FlushInterval:       c.GetDuration("display.refresh_interval", DefaultFlushInterval),
		MaxUpdateRects:      c.GetInt("display.max_update_rects", DefaultMaxUpdateRects),
	}

	socketPath := c.GetString("channel.socket", "")
	if socketPath == "" {
		return nil, util.NewContextualError("channel.socket must be set", nil, nil)
	}

	statsStart, err := startStats(l, c, buildVersion, configTest)
	if err != nil {
		return nil, util.NewContextualError("Failed to start stats emission", nil, err)
	}

	if configTest {
		return nil, nil
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, util.NewContextualError("Failed to connect to graphics channel", m{"socket": socketPath}, err)
	}

	ch := NewPipeChannel(l, conn, c.GetDuration("channel.request_timeout", DefaultRequestTimeout))
	eng := NewEngine(l, ch, engCfg)

	return &Control{
		l:          l,
		eng:        eng,
		ch:         ch,
		c:          c,
		statsStart: statsStart,
	}, nil
}

// parseResolutions reads the optional candidate mode list, each entry a
// map carrying width and height.
func parseResolutions(c *config.C) ([]Mode, error) {
	r := c.Get("display.resolutions")
	if r == nil {
		return nil, nil
	}

	rv, ok := r.([]any)
	if !ok {
		return nil, fmt.Errorf("display.resolutions is not a list")
	}

	modes := make([]Mode, 0, len(rv))
	for i, e := range rv {
		ev, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("entry %d is not a map", i)
		}

		w, err := asUint32(ev["width"])
		if err != nil {
			return nil, fmt.Errorf("entry %d width: %s", i, err)
		}
		h, err := asUint32(ev["height"])
		if err != nil {
			return nil, fmt.Errorf("entry %d height: %s", i, err)
		}
		modes = append(modes, Mode{Width: w, Height: h})
	}

	return modes, nil
}

func asUint32(v any) (uint32, error) {
	if v == nil {
		return 0, fmt.Errorf("missing value")
	}
	n, err := strconv.ParseUint(fmt.Sprintf("%v", v), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
