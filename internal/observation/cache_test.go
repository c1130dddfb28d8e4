package observation

import (
	"sync"
	"testing"

	"meteostation/internal/sensor"
)

func failure(kind sensor.ErrorKind) error {
	return &sensor.Error{Kind: kind}
}

func TestCache_NewIsIdleAndReadable(t *testing.T) {
	cache := New()

	obs, err := cache.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if obs.Value != nil || obs.Error != nil {
		t.Fatalf("expected empty observation, got %+v", obs)
	}
	if obs.State() != StateIdle {
		t.Fatalf("unexpected state: %s", obs.State())
	}
}

func TestCache_SuccessReplacesValueAndClearsStreak(t *testing.T) {
	cache := New()
	cache.Update(sensor.Reading{}, failure(sensor.KindTimeout))
	cache.Update(sensor.Reading{Temperature: 21.5, Humidity: 40}, nil)

	obs, err := cache.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if obs.Error != nil {
		t.Fatalf("expected streak to be cleared, got %+v", obs.Error)
	}
	if obs.Value == nil || obs.Value.Temperature != 21.5 || obs.Value.Humidity != 40 {
		t.Fatalf("unexpected value: %+v", obs.Value)
	}
	if obs.State() != StateHealthy {
		t.Fatalf("unexpected state: %s", obs.State())
	}
}

func TestCache_EvictsAfterThreshold(t *testing.T) {
	cache := New()
	cache.Update(sensor.Reading{Temperature: 24, Humidity: 55}, nil)

	for i := 1; i <= EvictionThreshold; i++ {
		cache.Update(sensor.Reading{}, failure(sensor.KindIO))
	}

	obs, err := cache.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if obs.Value == nil {
		t.Fatalf("value must survive %d consecutive errors", EvictionThreshold)
	}
	if obs.Error == nil || obs.Error.Count != EvictionThreshold {
		t.Fatalf("unexpected streak: %+v", obs.Error)
	}
	if obs.State() != StateDegraded {
		t.Fatalf("unexpected state: %s", obs.State())
	}

	cache.Update(sensor.Reading{}, failure(sensor.KindIntegrity))
	obs, err = cache.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if obs.Value != nil {
		t.Fatalf("value must be evicted after %d errors", EvictionThreshold+1)
	}
	if obs.Error.LastError != sensor.KindIntegrity {
		t.Fatalf("unexpected last error: %s", obs.Error.LastError)
	}
	if obs.State() != StateEvicted {
		t.Fatalf("unexpected state: %s", obs.State())
	}

	cache.Update(sensor.Reading{}, failure(sensor.KindTimeout))
	obs, _ = cache.Read()
	if obs.Value != nil || obs.Error.Count != EvictionThreshold+2 {
		t.Fatalf("evicted state must keep counting: %+v", obs.Error)
	}

	cache.Update(sensor.Reading{Temperature: 25, Humidity: 50}, nil)
	obs, _ = cache.Read()
	if obs.Error != nil || obs.Value == nil || obs.Value.Temperature != 25 {
		t.Fatalf("success must restore value and reset streak: %+v", obs)
	}
}

func TestCache_InterveningSuccessResetsCount(t *testing.T) {
	cache := New()
	cache.Update(sensor.Reading{Temperature: 1, Humidity: 2}, nil)
	for i := 0; i < EvictionThreshold; i++ {
		cache.Update(sensor.Reading{}, failure(sensor.KindIO))
	}
	cache.Update(sensor.Reading{Temperature: 3, Humidity: 4}, nil)
	for i := 0; i < EvictionThreshold; i++ {
		cache.Update(sensor.Reading{}, failure(sensor.KindIO))
	}

	obs, _ := cache.Read()
	if obs.Value == nil || obs.Value.Temperature != 3 {
		t.Fatalf("expected value to survive second run: %+v", obs.Value)
	}
	if obs.Error.Count != EvictionThreshold {
		t.Fatalf("unexpected count: %d", obs.Error.Count)
	}
}

func TestCache_LastErrorFollowsMostRecentKind(t *testing.T) {
	cache := New()
	cache.Update(sensor.Reading{}, failure(sensor.KindTimeout))
	cache.Update(sensor.Reading{}, failure(sensor.KindRuntime))

	obs, _ := cache.Read()
	if obs.Error.LastError != sensor.KindRuntime || obs.Error.Count != 2 {
		t.Fatalf("unexpected streak: %+v", obs.Error)
	}
	if obs.State() != StateDegraded || obs.Serving() {
		t.Fatalf("failures before first success must not serve: %s", obs.State())
	}
}

func TestCache_ReadReturnsIndependentCopy(t *testing.T) {
	cache := New()
	cache.Update(sensor.Reading{Temperature: 10, Humidity: 20}, nil)

	obs, _ := cache.Read()
	obs.Value.Temperature = 99

	again, _ := cache.Read()
	if again.Value.Temperature != 10 {
		t.Fatalf("snapshot mutation leaked into cache: %v", again.Value.Temperature)
	}
}

func TestCache_PanickingWriterPoisons(t *testing.T) {
	cache := New()
	cache.Update(sensor.Reading{Temperature: 10, Humidity: 20}, nil)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		cache.mutate(func(o *Observation) {
			o.Value = nil
			panic("writer died")
		})
	}()

	if _, err := cache.Read(); err != ErrPoisoned {
		t.Fatalf("expected ErrPoisoned, got %v", err)
	}
	if _, err := cache.State(); err != ErrPoisoned {
		t.Fatalf("expected ErrPoisoned from State, got %v", err)
	}

	cache.Update(sensor.Reading{Temperature: 1, Humidity: 1}, nil)
	if _, err := cache.Read(); err != ErrPoisoned {
		t.Fatalf("poisoned cache must not recover, got %v", err)
	}
}

func TestCache_ConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	cache := New()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				obs, err := cache.Read()
				if err != nil {
					t.Errorf("read: %v", err)
					return
				}
				if obs.Value != nil && obs.Value.Humidity != obs.Value.Temperature*2 {
					t.Errorf("torn value: %+v", obs.Value)
					return
				}
			}
		}()
	}

	for i := 0; i < 1000; i++ {
		if i%3 == 0 {
			cache.Update(sensor.Reading{}, failure(sensor.KindIO))
			continue
		}
		cache.Update(sensor.Reading{Temperature: float64(i), Humidity: float64(i * 2)}, nil)
	}
	close(stop)
	wg.Wait()
}
