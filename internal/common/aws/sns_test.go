package aws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSNS struct {
	mock.Mock
}

func (m *MockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*sns.PublishOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestSNSClient_PublishJSON(t *testing.T) {
	api := new(MockSNS)
	client := NewSNSClientWithAPI(api, "arn:aws:sns:us-east-1:123:entitlements")

	api.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		var body map[string]interface{}
		if err := json.Unmarshal([]byte(*in.Message), &body); err != nil {
			return false
		}
		return *in.TopicArn == "arn:aws:sns:us-east-1:123:entitlements" &&
			*in.MessageAttributes["eventType"].StringValue == "usage.limit_reached" &&
			*in.MessageAttributes["userId"].StringValue == "user-1" &&
			body["resource"] == "recordings"
	})).Return(&sns.PublishOutput{MessageId: awssdk.String("msg-1")}, nil)

	id, err := client.PublishJSON(context.Background(), "usage.limit_reached", "user-1",
		map[string]interface{}{"resource": "recordings"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	api.AssertExpectations(t)
}

func TestSNSClient_PublishJSON_Errors(t *testing.T) {
	api := new(MockSNS)
	client := NewSNSClientWithAPI(api, "arn")

	_, err := client.PublishJSON(context.Background(), "bad", "", map[string]interface{}{"ch": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "marshal bad payload")

	api.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))
	_, err = client.PublishJSON(context.Background(), "subscription.expired", "", map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}
