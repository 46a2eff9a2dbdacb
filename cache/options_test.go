package cache

import (
	"context"
	"testing"
)

func TestDefaultOptionsValidate(t *testing.T) {
	o := DefaultOptions()
	if err := o.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}

func TestValidateRejectsMissingGroupName(t *testing.T) {
	o := DefaultOptions()
	o.InstancesSharedName = ""
	if err := o.Validate(); err != ErrInvalidConfig {
		t.Fatalf("Validate() error = %v, want ErrInvalidConfig", err)
	}
}

func TestValidateRejectsBadSerializationFormat(t *testing.T) {
	o := DefaultOptions()
	o.SerializationFormat = "xml"
	if err := o.Validate(); err != ErrInvalidConfig {
		t.Fatalf("Validate() error = %v, want ErrInvalidConfig", err)
	}
}

func TestValidateRejectsZeroConnectRetry(t *testing.T) {
	o := DefaultOptions()
	o.ConnectRetry = 0
	if err := o.Validate(); err != ErrInvalidConfig {
		t.Fatalf("Validate() error = %v, want ErrInvalidConfig", err)
	}
}

func TestSetOptionsApply(t *testing.T) {
	var o setOptions
	WithLocalTTL(5)(&o)
	WithRedisTTL(10)(&o)
	WithFireAndForget()(&o)
	WithLocalEnable(false)(&o)

	if o.localTTL != 5 || o.redisTTL != 10 || !o.fireAndForget {
		t.Fatalf("setOptions = %+v", o)
	}
	if o.localEnable == nil || *o.localEnable != false {
		t.Fatalf("localEnable = %v, want pointer to false", o.localEnable)
	}
	if o.redisEnable != nil {
		t.Fatalf("redisEnable = %v, want nil (unset)", o.redisEnable)
	}
}

func TestGetOptionsApply(t *testing.T) {
	var o getOptions
	WithRetriever(func(_ context.Context, _ string) (any, error) { return "v", nil })(&o)
	WithGetLocalTTL(5)(&o)
	WithGetRedisTTL(10)(&o)
	WithGetFireAndForget()(&o)

	if o.retriever == nil {
		t.Fatal("retriever was not set")
	}
	if o.localTTL != 5 || o.redisTTL != 10 || !o.fireAndForget {
		t.Fatalf("getOptions = %+v", o)
	}
}
