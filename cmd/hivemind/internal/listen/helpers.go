package listen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JarbasHiveMind/HiveMind-speech-master/cmd/hivemind/internal"
	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/bus"
	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/config"
	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/database"
	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/discovery"
	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/hive"
	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/logger"
	"github.com/JarbasHiveMind/HiveMind-speech-master/pkg/speech"
)

func listenCmd(debug, announceSet, announceFlag bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	db, err := database.OpenJSONStore(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("error opening client db: %w", err)
	}

	msgBus := bus.NewMessageBus(cfg.Bus.Capacity)

	recognizer, err := speech.NewRecognizer(cfg.Speech)
	if err != nil {
		return fmt.Errorf("error creating stt engine: %w", err)
	}
	synthesizer, err := speech.NewSynthesizer(cfg.Speech.TTS)
	if err != nil {
		return fmt.Errorf("error creating tts engine: %w", err)
	}

	var cache *speech.Cache
	if cfg.Speech.TTS.CacheDir != "" {
		cache, err = speech.NewCache(cfg.TTSCachePath())
		if err != nil {
			fmt.Printf("⚠ TTS cache disabled: %v\n", err)
			cache = nil
		}
	}

	vad := speech.NewEnergyVAD(0)
	streamFor := speech.StreamFactory(recognizer, cfg.Speech.STTMode == config.STTModeStreaming)
	selfPeer := hive.SelfPeer(cfg.Listen.Host, cfg.Listen.Port)

	// the factory closes over registry and router, both assigned below
	// before any connection can arrive
	var registry *hive.Registry
	var router *hive.Router

	factory := func(peer string, queue chan []byte, useHotword bool) hive.AudioListener {
		var hotword speech.HotwordEngine
		if useHotword {
			hotword = speech.NewEnergyHotword(vad, 10)
		}
		return speech.NewListener(peer, queue, speech.ListenerOptions{
			SampleRate: cfg.Speech.SampleRate,
			Classifier: vad,
			STT:        streamFor(),
			Hotword:    hotword,
			Alive: func() bool {
				return registry.Has(peer)
			},
			OnUtterance: func(text string) {
				router.EmitUtterance(peer, text)
			},
			Emit: func(event string) {
				msgBus.Emit(bus.NewMessage(event, nil, map[string]any{"source": peer}))
			},
		})
	}

	registry = hive.NewRegistry(
		hive.IPPolicy{Mode: cfg.Policy.Mode, IPs: cfg.Policy.IPs},
		msgBus, factory)
	iface := hive.NewInterface(registry)
	router = hive.NewRouter(registry, msgBus, iface, selfPeer)

	dispatcher := speech.NewDispatcher(synthesizer, cache, func(peer string) (speech.Sink, bool) {
		session, ok := registry.Lookup(peer)
		if !ok {
			return nil, false
		}
		return session.Conn, true
	})
	router.OnSpeak = func(peer string, msg bus.Message) {
		utterance, _ := msg.Data["utterance"].(string)
		if utterance == "" {
			return
		}
		dispatcher.Enqueue(speech.Request{
			Peer:      peer,
			Utterance: utterance,
			Payload:   speakPayload(msg),
		})
	}
	router.RegisterBusHandlers()
	dispatcher.Start()

	controller := hive.NewController(db, registry, router, msgBus)
	server := hive.NewServer(cfg.Listen.Host, cfg.Listen.Port, controller)

	announce := cfg.Announce
	if announceSet {
		announce = announceFlag
	}
	var announcer *discovery.Announcer
	if announce {
		announcer, err = discovery.Announce("HiveMind-websocket", cfg.Listen.Port)
		if err != nil {
			fmt.Printf("⚠ mDNS announce failed: %v\n", err)
		}
	}

	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("hive", "Server error", map[string]any{"error": err.Error()})
		}
	}()

	fmt.Printf("✓ Hub listening on %s:%d (%s)\n", cfg.Listen.Host, cfg.Listen.Port, selfPeer)
	fmt.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down...")
	announcer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.WarnCF("hive", "Shutdown error", map[string]any{"error": err.Error()})
	}
	for _, peer := range registry.Peers() {
		registry.Unregister(peer, 1001, "server shutdown")
	}
	dispatcher.Stop()
	msgBus.Close()
	fmt.Println("✓ Hub stopped")

	return nil
}

// speakPayload renders the speak message as the text frame a client plays
// alongside the audio: a bus envelope wrapping the serialized message.
func speakPayload(msg bus.Message) []byte {
	raw, err := json.Marshal(msg.Serialize())
	if err != nil {
		return nil
	}
	env := &hive.Envelope{Kind: hive.KindBus, Payload: raw}
	data, err := env.Encode()
	if err != nil {
		return nil
	}
	return data
}
