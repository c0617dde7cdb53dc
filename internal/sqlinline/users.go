package sqlinline

const QSelectUserByAccessCode = `--sql c44302a1-bf67-409d-9ff4-40edc1db1d04
select id::text, access_code, coalesce(name, ''), created_at
from users
where access_code = $1::text
limit 1;
`
