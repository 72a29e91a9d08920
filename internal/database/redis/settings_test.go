package redis

import (
	"context"
	"testing"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"
)

func TestPing(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	s := NewSettingsStoreForTest(c)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetSetting_Found(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGET", "companion:settings:p1", "audio_enabled")).
		Return(mock.Result(mock.RedisString("false")))

	s := NewSettingsStoreForTest(c)
	v, ok, err := s.GetSetting(context.Background(), "p1", "audio_enabled")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || v != "false" {
		t.Errorf("expected stored 'false', got %q (%v)", v, ok)
	}
}

func TestGetSetting_Missing(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HGET", "companion:settings:p1", "audio_enabled")).
		Return(mock.Result(mock.RedisNil()))

	s := NewSettingsStoreForTest(c)
	_, ok, err := s.GetSetting(context.Background(), "p1", "audio_enabled")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected missing setting")
	}
}

func TestGetSetting_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewSettingsStoreForTest(c)
	if _, _, err := s.GetSetting(context.Background(), "p1", "k"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSetSetting(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("HSET", "companion:settings:p1", "audio_enabled", "true")).
		Return(mock.Result(mock.RedisInt64(1)))

	s := NewSettingsStoreForTest(c)
	if err := s.SetSetting(context.Background(), "p1", "audio_enabled", "true"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
