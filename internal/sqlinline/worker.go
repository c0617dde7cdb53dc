package sqlinline

// QWorkerClaimOrphanedJobs claims non-terminal jobs nobody has touched for $1
// seconds. Bumping updated_at keeps other workers and Cancel from treating the
// claimed rows as orphaned while they are polled.
const QWorkerClaimOrphanedJobs = `--sql 4f55a9b7-4e9f-4e45-a3b3-5a532d21d9db
with orphaned as (
    select id
    from generation_jobs
    where status in ('submitted', 'polling')
      and updated_at < now() - make_interval(secs => $1::int)
    order by updated_at asc
    limit $2::int
    for update skip locked
),
claimed as (
    update generation_jobs
    set updated_at = now()
    where id in (select id from orphaned)
    returning ` + jobColumns + `
)
select * from claimed;
`
