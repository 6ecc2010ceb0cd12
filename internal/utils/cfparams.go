package utils

import (
	"maps"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
)

// MergeParameters merges multiple parameter maps with later maps having higher precedence
// Returns a CloudFormation parameter list with merged results
func MergeParameters(pp ...map[string]string) []types.Parameter {
	m := map[string]string{}
	for _, p := range pp {
		maps.Copy(m, p)
	}

	var results []types.Parameter
	for _, k := range slices.Sorted(maps.Keys(m)) {
		v := m[k]
		results = append(results, types.Parameter{
			ParameterKey:   aws.String(k),
			ParameterValue: aws.String(v),
		})
	}

	return results
}

// StackTags builds the tag set every provisioned stack carries: the project
// tags from the deployment config plus the ManagedBy marker, sorted by key.
func StackTags(projectTags map[string]string) []types.Tag {
	m := map[string]string{"ManagedBy": "infra-provisioner"}
	maps.Copy(m, projectTags)

	var tags []types.Tag
	for _, k := range slices.Sorted(maps.Keys(m)) {
		tags = append(tags, types.Tag{
			Key:   aws.String(k),
			Value: aws.String(m[k]),
		})
	}

	return tags
}
