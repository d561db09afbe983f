package identity

import (
	"context"

	"github.com/Luismorlan/campusfeed/model"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
)

const (
	cognitoAttributeName    = "name"
	cognitoAttributePicture = "picture"
	cognitoAttributeRole    = "custom:role"
)

// CognitoAPI is the part of the Cognito client the provider needs.
type CognitoAPI interface {
	GetUser(ctx context.Context, params *cognitoidentityprovider.GetUserInput, optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GetUserOutput, error)
}

// CognitoProvider resolves Cognito access tokens with GetUser.
type CognitoProvider struct {
	client CognitoAPI
}

func NewCognitoProvider(client CognitoAPI) *CognitoProvider {
	return &CognitoProvider{client: client}
}

// NewDefaultCognitoProvider creates a client with aws config located in path
// ~/.aws/config or the environment.
func NewDefaultCognitoProvider(ctx context.Context, region string) (*CognitoProvider, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return NewCognitoProvider(cognitoidentityprovider.NewFromConfig(cfg)), nil
}

func (p *CognitoProvider) Identify(ctx context.Context, token string) (*model.Identity, error) {
	if token == "" {
		return nil, unauthorized("empty access token")
	}
	user, err := p.client.GetUser(ctx, &cognitoidentityprovider.GetUserInput{AccessToken: aws.String(token)})
	if err != nil {
		return nil, unauthorized("cognito rejected token: %v", err)
	}

	identity := &model.Identity{UserId: aws.ToString(user.Username), Role: model.RoleMember}
	for _, attr := range user.UserAttributes {
		switch aws.ToString(attr.Name) {
		case cognitoAttributeName:
			identity.DisplayName = aws.ToString(attr.Value)
		case cognitoAttributePicture:
			identity.AvatarUrl = aws.ToString(attr.Value)
		case cognitoAttributeRole:
			identity.Role = model.ParseRole(aws.ToString(attr.Value))
		}
	}
	if err := model.ValidateId(identity.UserId); err != nil {
		return nil, unauthorized("cognito user has no valid username")
	}
	if identity.DisplayName == "" {
		identity.DisplayName = identity.UserId
	}
	return identity, nil
}
