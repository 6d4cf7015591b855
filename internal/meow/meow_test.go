package meow

import (
	"context"
	"errors"
	"testing"

	"github.com/vbtlab/trainpipe/internal/models"
)

func TestSendText_Validation(t *testing.T) {
	c := &Client{}
	ctx := context.Background()

	if err := c.SendText(ctx, "34600111222", "hola"); err == nil {
		t.Fatal("expected error for uninitialized client")
	}
}

func TestSendList_InvalidList(t *testing.T) {
	c := &Client{}
	err := c.SendList(context.Background(), "34600111222", models.InteractiveList{Body: "x", Button: "y"})
	if !errors.Is(err, models.ErrEmptyListRows) {
		t.Errorf("expected ErrEmptyListRows, got %v", err)
	}
}
